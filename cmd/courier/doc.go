// Command courier is the CLI for submitting and managing serverless jobs.
package main
