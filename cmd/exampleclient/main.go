// Command exampleclient is the minimal reference RPC caller for the
// host's line-framed JSON-RPC wire format: one connection, one call,
// no pooling or registry discovery (spec §1 names the full client-side
// caller and its load balancer as out of scope; this supplies only the
// wire-format counterpart needed to exercise a running host).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"servicehost/internal/testclient"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8848", "host address")
	method := flag.String("method", "demo.add", "identifier.funcName to call")
	params := flag.String("params", `["tom",18]`, "JSON array of positional parameters")
	timeout := flag.Duration("timeout", 5*time.Second, "dial timeout")
	flag.Parse()

	var args []interface{}
	if err := json.Unmarshal([]byte(*params), &args); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -params: %v\n", err)
		os.Exit(1)
	}

	c, err := testclient.Dial(*addr, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial failed: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	var result interface{}
	if err := c.Call(*method, args, &result); err != nil {
		fmt.Fprintf(os.Stderr, "call failed: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.Marshal(result)
	fmt.Println(string(out))
}
