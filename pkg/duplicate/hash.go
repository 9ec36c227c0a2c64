package duplicate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// CalculateFileHash computes the SHA-256 hash of a file as lowercase hex
func CalculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	return CalculateStreamHash(file)
}

// CalculateStreamHash computes the SHA-256 hash from a reader
func CalculateStreamHash(r io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// FileInfo contains file metadata used for duplicate detection
type FileInfo struct {
	Hash string
	Size int64
}

// GetFileInfo retrieves file information including the content hash
func GetFileInfo(filePath string) (*FileInfo, error) {
	stat, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("stat file: %s is a directory", filePath)
	}

	hash, err := CalculateFileHash(filePath)
	if err != nil {
		return nil, fmt.Errorf("calculate hash: %w", err)
	}

	return &FileInfo{
		Hash: hash,
		Size: stat.Size(),
	}, nil
}
