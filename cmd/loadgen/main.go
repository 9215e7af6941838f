package main

import (
	"flag"
	"fmt"
	"os"

	loadgen "github.com/queryshield/queryshield/internal/loadgen"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "generate":
		genCmd := flag.NewFlagSet("generate", flag.ExitOnError)
		configPath := genCmd.String("config", "", "Path to config file")
		genCmd.Parse(os.Args[2:])
		if *configPath == "" {
			fmt.Println("Error: --config is required for 'generate'")
			genCmd.Usage()
			os.Exit(1)
		}
		fmt.Printf("Running 'generate' with config: %s\n", *configPath)
		loadgen.Generate(configPath)

	case "run":
		runCmd := flag.NewFlagSet("run", flag.ExitOnError)
		configPath := runCmd.String("config", "", "Path to config file")
		runCmd.Parse(os.Args[2:])
		if *configPath == "" {
			fmt.Println("Error: --config is required for 'run'")
			runCmd.Usage()
			os.Exit(1)
		}
		fmt.Printf("Running 'run' with config: %s\n", *configPath)
		loadgen.Run(configPath)

	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Printf("Unknown subcommand: %s\n\n", os.Args[1])
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println(`Usage: loadgen <subcommand> --config <path>`)
	fmt.Println()
	fmt.Println("Subcommands:")
	fmt.Println("  generate  --config <path>   Generate synthetic pipeline requests")
	fmt.Println("  run       --config <path>   Feed generated requests through the pipeline")
	fmt.Println("  help                        Show this help message")
}
