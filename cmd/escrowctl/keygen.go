package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"escrowledger/crypto"
)

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("escrowctl keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	keystorePath := fs.String("keystore", "", "output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "overwrite an existing keystore file")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if *keystorePath == "" {
		return printError(stderr, "--keystore is required")
	}
	if !*force {
		if _, err := os.Stat(*keystorePath); err == nil {
			return printError(stderr, fmt.Sprintf("keystore file %s already exists (use --force to overwrite)", *keystorePath))
		} else if !os.IsNotExist(err) {
			return printError(stderr, err.Error())
		}
	}
	passphrase, ok := os.LookupEnv(*passEnv)
	if !ok {
		return printError(stderr, fmt.Sprintf("environment variable %s is not set", *passEnv))
	}

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, err.Error())
	}
	addr, err := crypto.SaveToKeystore(*keystorePath, key, passphrase)
	if err != nil {
		return printError(stderr, fmt.Sprintf("failed to write keystore: %v", err))
	}
	return writeJSON(stdout, map[string]string{
		"address":  addr.Hex(),
		"bech32":   addr.String(),
		"keystore": *keystorePath,
	})
}
