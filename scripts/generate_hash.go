//go:build ignore

// generate_hash.go - генерирует Argon2id-хеш пароля для ADMIN_PASSWORD_HASH.
//
//	go run scripts/generate_hash.go <пароль>
//	echo -n 'пароль' | go run scripts/generate_hash.go   # без следа в истории shell
package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

// Параметры должны читаться админкой: $argon2id$v=19$m=...,t=...,p=...$salt$hash
const (
	memory      uint32 = 64 * 1024 // KiB
	iterations  uint32 = 3
	parallelism uint8  = 2
	saltLength         = 16
	keyLength   uint32 = 32

	minPasswordLength = 8
)

func main() {
	password, err := readPassword()
	if err != nil {
		fail("Ошибка чтения пароля: %v", err)
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		fail("Пароль короче %d символов", minPasswordLength)
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		fail("Ошибка генерации соли: %v", err)
	}

	hash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, keyLength)

	fmt.Fprintln(os.Stderr, "Хеш пароля (вставьте в .env как ADMIN_PASSWORD_HASH):")
	fmt.Printf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s\n",
		argon2.Version, memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

func readPassword() (string, error) {
	if len(os.Args) > 1 {
		return os.Args[1], nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
