package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/oreon-project/pickup-go/pkg/log"
)

// RunFilter copies events matching the filter into a new log file.
func RunFilter(inPath, outPath string, filter log.Filter) (int, error) {
	reader, err := log.NewFilteredReader(inPath, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}

	encoder := log.NewEncoder(out)
	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			out.Close()
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			out.Close()
			return count, fmt.Errorf("failed to write event: %w", err)
		}
		count++
	}

	if err := out.Close(); err != nil {
		return count, fmt.Errorf("failed to close output file: %w", err)
	}
	return count, nil
}
