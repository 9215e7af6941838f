package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Checkpoint captures the hash-chain head of one partition at seal time.
// Verifying later recomputes the chain over the partition's first Lines
// lines and compares heads; any edit, reorder or deletion inside the
// sealed range changes the head. Appends past Lines are expected and
// fine.
type Checkpoint struct {
	Partition string `json:"partition"` // partition filename, not path
	Lines     int    `json:"lines"`
	HeadHash  string `json:"head_hash"`
	CreatedAt string `json:"created_at"` // RFC3339 UTC
}

// VerifyResult reports the outcome of checking one partition against its
// checkpoint.
type VerifyResult struct {
	Partition      string `json:"partition"`
	SealedLines    int    `json:"sealed_lines"`
	CurrentLines   int    `json:"current_lines"`
	Intact         bool   `json:"intact"`
	FirstBadLine   int    `json:"first_bad_line,omitempty"` // 1-based, 0 when intact
	ExpectedHead   string `json:"expected_head"`
	RecomputedHead string `json:"recomputed_head"`
}

const checkpointExt = ".checkpoint"

func zeroHash() string {
	return strings.Repeat("0", 64)
}

// canonicalizeLine reduces one NDJSON line to a key-sorted compact form
// so that cosmetic re-encoding does not break the chain. Lines that are
// not JSON objects hash as-is; the chain still covers them.
func canonicalizeLine(line []byte) []byte {
	var obj map[string]any
	if err := json.Unmarshal(line, &obj); err != nil {
		return line
	}
	// encoding/json sorts map keys on marshal.
	canonical, err := json.Marshal(obj)
	if err != nil {
		return line
	}
	return canonical
}

func chainStep(head string, line []byte) string {
	h := sha256.New()
	h.Write([]byte(head))
	h.Write([]byte("|"))
	h.Write(canonicalizeLine(line))
	return hex.EncodeToString(h.Sum(nil))
}

// chainHead computes the hash-chain head over at most limit lines of the
// partition (limit <= 0 means all lines). It returns the head and the
// number of lines consumed.
func chainHead(path string, limit int) (string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	head := zeroHash()
	lines := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if limit > 0 && lines >= limit {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		head = chainStep(head, line)
		lines++
	}
	if err := scanner.Err(); err != nil {
		return "", 0, fmt.Errorf("scan %s: %w", path, err)
	}
	return head, lines, nil
}

// Seal writes (or refreshes) a checkpoint for every partition currently
// in the trail directory and returns the checkpoints written.
func (t *Trail) Seal() ([]Checkpoint, error) {
	partitions, err := t.listPartitions()
	if err != nil {
		return nil, err
	}

	var checkpoints []Checkpoint
	for _, path := range partitions {
		head, lines, err := chainHead(path, 0)
		if err != nil {
			return nil, err
		}
		cp := Checkpoint{
			Partition: filepath.Base(path),
			Lines:     lines,
			HeadHash:  head,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		data, err := json.MarshalIndent(cp, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal checkpoint: %w", err)
		}
		cpPath := path + checkpointExt
		if err := os.WriteFile(cpPath, append(data, '\n'), 0o644); err != nil {
			return nil, fmt.Errorf("write checkpoint %s: %w", cpPath, err)
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, nil
}

// Verify recomputes the chain for every sealed partition and compares it
// against the stored checkpoint. Partitions without a checkpoint are
// skipped; a missing sealed partition is a failure.
func (t *Trail) Verify() ([]VerifyResult, error) {
	cpPaths, err := filepath.Glob(filepath.Join(t.dir, "*"+partitionExt+checkpointExt))
	if err != nil {
		return nil, err
	}
	sort.Strings(cpPaths)

	var results []VerifyResult
	for _, cpPath := range cpPaths {
		data, err := os.ReadFile(cpPath)
		if err != nil {
			return nil, fmt.Errorf("read checkpoint %s: %w", cpPath, err)
		}
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			return nil, fmt.Errorf("parse checkpoint %s: %w", cpPath, err)
		}

		partPath := filepath.Join(t.dir, cp.Partition)
		res := VerifyResult{
			Partition:    cp.Partition,
			SealedLines:  cp.Lines,
			ExpectedHead: cp.HeadHash,
		}

		head, lines, err := chainHead(partPath, cp.Lines)
		if err != nil {
			if os.IsNotExist(err) {
				res.RecomputedHead = zeroHash()
				results = append(results, res)
				continue
			}
			return nil, err
		}
		res.CurrentLines = lines
		res.RecomputedHead = head
		res.Intact = lines == cp.Lines && head == cp.HeadHash
		if !res.Intact {
			res.FirstBadLine = firstDivergence(partPath, cp)
		}
		results = append(results, res)
	}
	return results, nil
}

// firstDivergence walks the partition line by line, recomputing the
// chain, and reports the first line where truncation makes further
// comparison impossible. Without per-line stored hashes only truncation
// is pinpointed exactly; content edits report the sealed length.
func firstDivergence(path string, cp Checkpoint) int {
	_, lines, err := chainHead(path, cp.Lines)
	if err != nil {
		return 1
	}
	if lines < cp.Lines {
		return lines + 1
	}
	return cp.Lines
}

// listPartitions returns every NDJSON partition in the trail directory,
// both series, sorted by name.
func (t *Trail) listPartitions() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(t.dir, "*"+partitionExt))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
