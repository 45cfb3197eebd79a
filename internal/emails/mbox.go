package emails

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MBOXProgress tracks the progress of MBOX splitting
type MBOXProgress struct {
	BytesProcessed  int64
	TotalBytes      int64
	MessagesEmitted int
	PercentComplete float64
}

// MessageCallback receives each raw message split out of an MBOX stream. Returning an
// error stops the split.
type MessageCallback func(index int, raw []byte, progress MBOXProgress) error

// SplitMBOXFile splits an MBOX file into raw RFC 5322 messages
func SplitMBOXFile(filename string, callback MessageCallback) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open MBOX file: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}

	return SplitMBOX(file, info.Size(), callback)
}

// SplitMBOX splits an MBOX stream. totalBytes is only used for progress reporting and may
// be zero when unknown.
func SplitMBOX(r io.Reader, totalBytes int64, callback MessageCallback) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024) // 10MB max line

	var current bytes.Buffer
	var emitted int
	var bytesProcessed int64

	emit := func() error {
		if current.Len() == 0 {
			return nil
		}
		progress := MBOXProgress{
			BytesProcessed:  bytesProcessed,
			TotalBytes:      totalBytes,
			MessagesEmitted: emitted + 1,
		}
		if totalBytes > 0 {
			progress.PercentComplete = float64(bytesProcessed) / float64(totalBytes) * 100
		}
		raw := append([]byte(nil), current.Bytes()...)
		current.Reset()
		if err := callback(emitted, raw, progress); err != nil {
			return fmt.Errorf("message %d: %w", emitted+1, err)
		}
		emitted++
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		bytesProcessed += int64(len(line) + 1)

		// MBOX format: each message starts with "From " (with space)
		if strings.HasPrefix(line, "From ") {
			if err := emit(); err != nil {
				return err
			}
			continue
		}

		// mboxrd quoting
		if strings.HasPrefix(line, ">From ") {
			line = line[1:]
		}
		current.WriteString(line)
		current.WriteString("\r\n")
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading MBOX stream: %w", err)
	}

	return emit()
}

// FindFiles recursively finds files whose extension is one of exts
func FindFiles(root string, exts ...string) ([]string, error) {
	var files []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Skip lost+found directory (common in mounted volumes)
		if info.IsDir() && info.Name() == "lost+found" {
			return filepath.SkipDir
		}
		if info.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(info.Name()))
		for _, want := range exts {
			if ext == want {
				files = append(files, path)
				break
			}
		}
		return nil
	})

	return files, err
}
