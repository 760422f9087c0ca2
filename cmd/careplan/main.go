// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is the entry point for the Care Plan Generator service.
//
// The service accepts specialty pharmacy orders, blocks duplicate
// submissions, and generates clinical care plans asynchronously through a
// configurable LLM provider (Claude, OpenAI, Bedrock, or a mock for local
// development).
//
// Usage:
//
//	./careplan
//	./careplan -example-config   # print a starter YAML config and exit
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - PostgreSQL connection string (required)
//	REDIS_URL - Redis connection string for the task queue (required)
//	LLM_PROVIDER - claude | openai | bedrock | mock (default: mock)
//	LLM_API_KEY - provider API key (or LLM_API_KEY_SECRET_ARN)
//	CAREPLAN_CONFIG_FILE - optional YAML config file path
package main

import (
	"flag"
	"fmt"
	"os"

	"axonflow/careplan/config"
	"axonflow/careplan/service"
)

func main() {
	exampleConfig := flag.Bool("example-config", false, "print a starter YAML config file and exit")
	flag.Parse()

	if *exampleConfig {
		fmt.Print(config.ExampleConfigFile())
		return
	}

	if err := service.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "careplan: %v\n", err)
		os.Exit(1)
	}
}
