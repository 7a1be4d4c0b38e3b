package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// FirstAccountNumber is issued when no account exists yet.
const FirstAccountNumber = "1000000000"

const lastAccountNumber = 9999999999

// ErrAccountNumbersExhausted means every 10-digit account number is in use.
var ErrAccountNumbersExhausted = errors.New("account number space exhausted")

// GenerateTransactionID returns a fresh 32-character hex identifier. Every
// attempted balance mutation gets its own, including rejected ones.
func GenerateTransactionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NextAccountNumber returns the number following the most recently issued
// one, or FirstAccountNumber when last is empty.
func NextAccountNumber(last string) (string, error) {
	if last == "" {
		return FirstAccountNumber, nil
	}
	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid account number %q: %w", last, err)
	}
	if n < 0 || n >= lastAccountNumber {
		return "", fmt.Errorf("no account number after %q: %w", last, ErrAccountNumbersExhausted)
	}
	return strconv.FormatInt(n+1, 10), nil
}

// ValidateAccountNumber checks the 10-digit account number format.
func ValidateAccountNumber(accountNumber string) bool {
	if len(accountNumber) != 10 {
		return false
	}
	for _, r := range accountNumber {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ValidateTransactionID checks the identifier format produced by
// GenerateTransactionID.
func ValidateTransactionID(transactionID string) bool {
	if len(transactionID) != 32 {
		return false
	}
	_, err := uuid.Parse(transactionID)
	return err == nil
}
