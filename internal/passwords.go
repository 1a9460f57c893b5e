package internal

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sensiblebit/sailor"
)

// LoadPasswordsFromFile loads passwords from a file, one password per line
func LoadPasswordsFromFile(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var passwords []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			passwords = append(passwords, pwd)
		}
	}
	return passwords, scanner.Err()
}

// ProcessPasswords returns the passwords to try when opening a certificate
// container: the defaults, then passwordList, then the lines of passwordFile.
func ProcessPasswords(passwordList []string, passwordFile string) ([]string, error) {
	extra := append([]string(nil), passwordList...)
	if passwordFile != "" {
		filePasswords, err := LoadPasswordsFromFile(passwordFile)
		if err != nil {
			return nil, fmt.Errorf("loading passwords from file: %w", err)
		}
		extra = append(extra, filePasswords...)
	}
	return sailor.DeduplicatePasswords(extra), nil
}
