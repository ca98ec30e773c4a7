// Package process runs a helper command that consumes data on stdin.
//
// The command's stdout and stderr are logged line by line. Stop closes stdin
// and escalates to SIGINT and then SIGKILL on the process group if the command
// keeps running.
//
//	p := process.New("detector", "python3 detect.py --stdin", logger)
//	stdin, err := p.Start()
//	...
//	exitCode := p.Stop()
package process
