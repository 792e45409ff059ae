// Command keytool generates validator keystores and the mTLS certificate
// bundle a node's P2P listener needs, split out of the single monolithic
// node binary so key material never has to exist in the same process as
// one that also opens a network listener.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ioi-foundation/kernel/crypto"
	"github.com/ioi-foundation/kernel/crypto/certgen"
)

func main() {
	genKey := flag.Bool("genkey", false, "generate a new validator key and exit")
	keyPath := flag.String("key", "validator.key", "path to write the keystore file")
	genCerts := flag.String("gencerts", "", "generate CA + node TLS certs into the given directory and exit")
	nodeID := flag.String("node-id", "", "node ID to embed in the generated certificate (required with -gencerts)")
	ipc := flag.Bool("ipc", false, "generate an IPC control-plane CA instead of a P2P listener CA")
	flag.Parse()

	password := os.Getenv("IOI_KERNEL_PASSWORD")
	if password == "" {
		log.Println("WARNING: IOI_KERNEL_PASSWORD not set — keystore will use an empty password")
	}

	switch {
	case *genKey:
		priv, pub, err := crypto.GenerateKeyPair()
		if err != nil {
			log.Fatalf("generate key: %v", err)
		}
		if err := crypto.SaveKeystore(*keyPath, password, priv); err != nil {
			log.Fatalf("save keystore: %v", err)
		}
		fmt.Printf("Generated key. Public key (validator address): %s\n", pub.Hex())
		fmt.Printf("Saved to: %s\n", *keyPath)

	case *genCerts != "":
		if *nodeID == "" {
			log.Fatal("-node-id is required with -gencerts")
		}
		var opts *certgen.Options
		if *ipc {
			opts = &certgen.Options{CAName: "IOI Kernel IPC CA"}
		}
		if err := certgen.GenerateAll(*genCerts, *nodeID, opts); err != nil {
			log.Fatalf("gencerts: %v", err)
		}
		fmt.Printf("Certificates generated in %s for node %q\n", *genCerts, *nodeID)

	default:
		fmt.Println("usage: keytool -genkey -key <path> | -gencerts <dir> -node-id <id>")
		os.Exit(2)
	}
}
