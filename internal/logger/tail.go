package logger

import (
	"bufio"
	"fmt"
	"os"
)

// TailLines returns up to the last n lines of the file at path. If the file
// does not exist, an empty slice is returned (not an error) since a server
// that has never logged anything is not a failure.
func TailLines(path string, n int) ([]string, error) {
	if n <= 0 {
		n = 100
	}

	f, err := os.Open(path) //nolint:gosec // path is built from ServerLogPath
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("opening log file %q: %w", path, err)
	}
	defer f.Close()

	// A ring buffer keeps memory bounded to n lines regardless of file size.
	ring := make([]string, n)
	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		ring[count%n] = scanner.Text()
		count++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading log file %q: %w", path, err)
	}

	if count == 0 {
		return []string{}, nil
	}
	size := count
	if size > n {
		size = n
	}
	out := make([]string, size)
	start := count - size
	for i := 0; i < size; i++ {
		out[i] = ring[(start+i)%n]
	}
	return out, nil
}
