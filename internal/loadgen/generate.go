package loadgen

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config drives synthetic request generation.
type Config struct {
	Seed     int64  `yaml:"seed"`
	Requests int    `yaml:"requests"`
	Users    int    `yaml:"users"`
	Output   string `yaml:"output"`
	AuditDir string `yaml:"auditDir"`
}

// Request is one synthetic pipeline input, serialized as NDJSON.
type Request struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	Question  string `json:"question"`
	Statement string `json:"statement"`
}

// RetailSchema is the synthetic schema every generated statement targets.
const RetailSchema = `Table: customers
- id (INT) [primary key]
- name (VARCHAR)
- email (VARCHAR)
- password_hash (VARCHAR)
- ssn (VARCHAR)
- created_at (TIMESTAMP)

Table: orders
- id (INT) [primary key]
- customer_id (INT)
- total (DECIMAL)
- status (VARCHAR)
- placed_at (TIMESTAMP)

Table: payment_methods
- id (INT) [primary key]
- customer_id (INT)
- card_number (VARCHAR)
- cvv (VARCHAR)
- expiry (VARCHAR)
`

func readConfig(path string) (Config, error) {
	log.Printf("[DEBUG] Loading config from %s\n", path)
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Requests <= 0 {
		cfg.Requests = 100
	}
	if cfg.Users <= 0 {
		cfg.Users = 5
	}
	return cfg, nil
}

// statement templates, weighted towards realistic NL-to-SQL output.
// Some deliberately hit the sensitive catalog or the denylist so a run
// populates every audit path.
var templates = []struct {
	question  string
	statement string
}{
	{"How many customers do we have?", "SELECT COUNT(id) FROM customers"},
	{"Show me recent orders", "SELECT id, total, status FROM orders"},
	{"List customer names and emails", "SELECT name, email FROM customers"},
	{"What are all the customer details?", "SELECT * FROM customers"},
	{"Show customer passwords", "SELECT password_hash FROM customers"},
	{"Get customer SSNs and names", "SELECT name, ssn FROM customers"},
	{"Show stored card numbers", "SELECT card_number, cvv FROM payment_methods"},
	{"What is the average order total?", "SELECT AVG(total) FROM orders"},
	{"Delete old orders", "DELETE FROM orders WHERE placed_at < NOW()"},
	{"Drop the customers table", "DROP TABLE customers"},
	{"Show orders then clean up", "SELECT id FROM orders; DELETE FROM orders"},
	{"Describe the orders table", "DESCRIBE orders"},
}

// Generate writes a deterministic NDJSON file of synthetic requests.
func Generate(configPath *string) {
	cfg, err := readConfig(*configPath)
	if err != nil {
		log.Fatalf("[FATAL] Error loading config: %v", err)
	}

	// deterministic data if seed provided
	gofakeit.Seed(cfg.Seed)

	f, err := os.Create(cfg.Output)
	if err != nil {
		log.Fatalf("[FATAL] cannot create output file: %v", err)
	}
	defer f.Close()

	users := make([]string, cfg.Users)
	for i := range users {
		users[i] = gofakeit.Username()
	}

	w := bufio.NewWriter(f)
	defer w.Flush()

	for i := 0; i < cfg.Requests; i++ {
		tpl := templates[gofakeit.Number(0, len(templates)-1)]
		req := Request{
			ID:        uuid.NewString(),
			User:      users[gofakeit.Number(0, len(users)-1)],
			Question:  tpl.question,
			Statement: tpl.statement,
		}
		line, err := json.Marshal(req)
		if err != nil {
			log.Fatalf("[FATAL] marshal request: %v", err)
		}
		fmt.Fprintln(w, string(line))
	}

	log.Printf("[INFO] wrote %d requests to %s\n", cfg.Requests, cfg.Output)
}
