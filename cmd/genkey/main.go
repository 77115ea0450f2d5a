package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

// genkey prints a new API key and the hash to append to API_KEY_HASHES.
// With -hash it only hashes an existing key.
func main() {
	env := flag.String("env", domain.EnvLive, "Key environment: live or test")
	hashOnly := flag.String("hash", "", "Hash an existing key instead of generating one")
	flag.Parse()

	if *hashOnly != "" {
		if !domain.IsValidFormat(*hashOnly) {
			fmt.Fprintln(os.Stderr, "warning: key does not look like fp_<env>_<32 chars>")
		}
		fmt.Printf("HASH=%s\n", domain.HashAPIKey(*hashOnly))
		return
	}

	key, hash, prefix, err := domain.GenerateAPIKey(*env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Printf("KEY=%s\nHASH=%s\nPREFIX=%s\n", key, hash, prefix)
}
