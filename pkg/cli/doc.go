/*
Package cli provides command-line interface utilities for Veridion
Sentinel.

The cli package includes output formatters, signal handling, and common
CLI error types used by the sentinel command.

Output Formatting:

The cli package supports text and JSON output for displaying command
results:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	sig := <-cli.WaitForShutdown()
	log.Printf("received %s, shutting down", sig)
*/
package cli
