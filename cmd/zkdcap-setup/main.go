// zkDCAP Setup CLI
// Runs the Groth16 trusted setup for the zkDCAP commitment circuit and
// writes the proving/verifying keys the enclave's zkdcap prover loads.

package main

import (
	"fmt"
	"os"

	"github.com/sbx-labs/lcp-enclave/pkg/attestation/zkdcap"
)

func main() {
	if err := zkdcap.RunSetupCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
