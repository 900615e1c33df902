package util

import (
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates the directory (and parents) if it does not exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// takes a save path and a variable number of strings and writes them to file separated by new lines
func WriteToFile(savePath string, content ...string) error {
	return os.WriteFile(savePath, []byte(strings.Join(content, "\n")), 0644)
}

// WriteBytes writes data to savePath through a temporary file in the same
// directory, so readers never observe a partially written file
func WriteBytes(savePath string, data []byte) error {
	if err := EnsureDir(filepath.Dir(savePath)); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(savePath), filepath.Base(savePath)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), savePath)
}

func AppendToFile(savePath string, content ...string) error {
	f, err := os.OpenFile(savePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return err
	}

	defer f.Close()

	for _, s := range content {
		if _, err = f.WriteString(s + "\n"); err != nil {
			return err
		}
	}
	return nil
}
