package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	cli "github.com/spf13/pflag"

	"iris/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", "/tmp/iris.sock", "Daemon control socket")
	cli.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: iris-ctl [-s socket] trigger|stop|status\n")
		cli.PrintDefaults()
	}
	cli.Parse()

	cmd := ipc.CmdTrigger
	if cli.NArg() > 0 {
		cmd = cli.Arg(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reply, err := ipc.SendCommand(ctx, *socket, cmd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "iris:", err)
		os.Exit(1)
	}
	if len(reply.Status) > 0 {
		var st map[string]any
		if err := json.Unmarshal(reply.Status, &st); err == nil {
			out, _ := json.MarshalIndent(st, "", "  ")
			fmt.Println(string(out))
			return
		}
		fmt.Println(string(reply.Status))
	}
}
