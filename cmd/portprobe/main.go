// cmd/portprobe/main.go
//
// Standalone reachability check for the candidate Modbus TCP ports of a
// controller. Useful before pointing cncmon at a machine.
package main

import (
	"flag"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

var defaultPorts = []int{502, 503, 5020, 5502, 1502, 8502}

func main() {
	host := flag.String("host", "192.168.1.100", "Controller host to probe")
	ports := flag.String("ports", "", "Comma-separated ports (default: common Modbus TCP ports)")
	timeout := flag.Duration("timeout", 2*time.Second, "Dial timeout per port")
	flag.Parse()

	probe := defaultPorts
	if *ports != "" {
		probe = probe[:0]
		for _, raw := range strings.Split(*ports, ",") {
			p, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil || p < 1 || p > 65535 {
				fmt.Printf("skipping invalid port %q\n", raw)
				continue
			}
			probe = append(probe, p)
		}
	}

	fmt.Printf("Checking Modbus TCP ports on %s (timeout %s)\n\n", *host, *timeout)

	var open, closed []int
	for _, p := range probe {
		addr := net.JoinHostPort(*host, strconv.Itoa(p))
		conn, err := net.DialTimeout("tcp", addr, *timeout)
		if err != nil {
			fmt.Printf("port %5d: CLOSED\n", p)
			closed = append(closed, p)
			continue
		}
		conn.Close()
		fmt.Printf("port %5d: OPEN\n", p)
		open = append(open, p)
	}

	fmt.Printf("\nopen:   %v\nclosed: %v\n", open, closed)
}
