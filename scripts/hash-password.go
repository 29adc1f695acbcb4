package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/inzo/orchestrator-go/internal/util"
)

// Prints a BRIDGE_TOKEN_HASH for the given bridge token. With no argument a
// fresh token is generated and printed alongside its hash.
func main() {
	token := ""
	if len(os.Args) >= 2 {
		token = os.Args[1]
	} else {
		var err error
		token, err = util.GenerateToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("BRIDGE_TOKEN=%s\n", token)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), 12)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("BRIDGE_TOKEN_HASH=%s\n", hash)
}
