// Command labstock manages a laboratory reagent inventory: storage racks,
// reagents with image and safety data sheet attachments, usage reports that
// decrement stock, user accounts and supporting materials.
package main

import (
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one command line and returns the process exit code.
func run(args []string, in io.Reader, out, errOut io.Writer) int {
	a := newApp(in, out, errOut)
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	err := cmd.Execute()
	if cerr := a.close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		_, _ = io.WriteString(errOut, "Error: "+err.Error()+"\n")
		return 1
	}
	return 0
}
