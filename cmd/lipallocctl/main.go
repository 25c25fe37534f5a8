// Command lipallocctl issues control-plane requests against a running
// lipallocd, the way r2-a2s-probe issues requests against a game server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/spf13/pflag"
)

var opt struct {
	Server  string
	Family  uint8
	Proto   uint8
	VAddr   string
	VPort   uint16
	FWMark  uint32
	Match   string
	Addr    string
	Ifname  string
	Timeout time.Duration
	Help    bool
}

func init() {
	pflag.StringVarP(&opt.Server, "server", "s", "http://127.0.0.1:8090", "Base URL of the lipallocd control plane")
	pflag.Uint8Var(&opt.Family, "family", 4, "Address family of the service (4=ipv4, 6=ipv6)")
	pflag.Uint8Var(&opt.Proto, "proto", 6, "Protocol of the service (6=tcp, 17=udp)")
	pflag.StringVar(&opt.VAddr, "vaddr", "", "Virtual service address")
	pflag.Uint16Var(&opt.VPort, "vport", 0, "Virtual service port")
	pflag.Uint32Var(&opt.FWMark, "fwmark", 0, "Virtual service firewall mark")
	pflag.StringVar(&opt.Match, "match", "", "Virtual service match string")
	pflag.StringVar(&opt.Addr, "addr", "", "Local address, for add/del")
	pflag.StringVar(&opt.Ifname, "ifname", "", "Bound interface name, for add")
	pflag.DurationVarP(&opt.Timeout, "timeout", "t", 5*time.Second, "Request timeout")
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func usage() {
	fmt.Printf("usage: %s [options] add|del|flush|getall|healthz\n\noptions:\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
}

func main() {
	pflag.Parse()

	if pflag.NArg() != 1 || opt.Help {
		usage()
		if opt.Help {
			os.Exit(2)
		}
		os.Exit(0)
	}

	c := &client{base: opt.Server, hc: &http.Client{Timeout: opt.Timeout}}

	var err error
	switch op := pflag.Arg(0); op {
	case "add":
		err = c.laddrAdd()
	case "del":
		err = c.laddrDel()
	case "flush":
		err = c.laddrFlush()
	case "getall":
		err = c.laddrGetAll()
	case "healthz":
		err = c.healthz()
	default:
		fmt.Fprintf(os.Stderr, "error: unknown operation %q\n", op)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// serviceKeyWire mirrors pkg/control's JSON shape for a service key. It is
// redefined here rather than imported, since lipallocctl only ever speaks
// to a daemon over the wire, never links against its internals.
type serviceKeyWire struct {
	Family uint8      `json:"family"`
	Proto  uint8      `json:"proto"`
	VAddr  netip.Addr `json:"vaddr"`
	VPort  uint16     `json:"vport"`
	FWMark uint32     `json:"fwmark"`
	Match  string     `json:"match"`
}

func (c *client) service() (serviceKeyWire, error) {
	var a netip.Addr
	if opt.VAddr != "" {
		var err error
		if a, err = netip.ParseAddr(opt.VAddr); err != nil {
			return serviceKeyWire{}, fmt.Errorf("parse vaddr: %w", err)
		}
	}
	return serviceKeyWire{
		Family: opt.Family,
		Proto:  opt.Proto,
		VAddr:  a,
		VPort:  opt.VPort,
		FWMark: opt.FWMark,
		Match:  opt.Match,
	}, nil
}

type client struct {
	base string
	hc   *http.Client
}

func (c *client) do(method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.base+path, r)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if out == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) laddrAdd() error {
	svc, err := c.service()
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(opt.Addr)
	if err != nil {
		return fmt.Errorf("parse addr: %w", err)
	}

	var reply struct {
		Status string `json:"status"`
	}
	req := struct {
		Service serviceKeyWire `json:"service"`
		Family  uint8          `json:"family"`
		Addr    netip.Addr     `json:"addr"`
		Ifname  string         `json:"ifname"`
	}{svc, opt.Family, addr, opt.Ifname}

	if err := c.do(http.MethodPost, "/v1/laddr", req, &reply); err != nil {
		return err
	}
	fmt.Println(reply.Status)
	return nil
}

func (c *client) laddrDel() error {
	svc, err := c.service()
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(opt.Addr)
	if err != nil {
		return fmt.Errorf("parse addr: %w", err)
	}

	var reply struct {
		Status string `json:"status"`
	}
	req := struct {
		Service serviceKeyWire `json:"service"`
		Family  uint8          `json:"family"`
		Addr    netip.Addr     `json:"addr"`
	}{svc, opt.Family, addr}

	if err := c.do(http.MethodDelete, "/v1/laddr", req, &reply); err != nil {
		return err
	}
	fmt.Println(reply.Status)
	return nil
}

func (c *client) laddrFlush() error {
	svc, err := c.service()
	if err != nil {
		return err
	}

	var reply struct {
		Status string `json:"status"`
	}
	req := struct {
		Service serviceKeyWire `json:"service"`
	}{svc}

	if err := c.do(http.MethodPost, "/v1/laddr/flush", req, &reply); err != nil {
		return err
	}
	fmt.Println(reply.Status)
	return nil
}

func (c *client) laddrGetAll() error {
	svc, err := c.service()
	if err != nil {
		return err
	}

	var reply struct {
		Status  string `json:"status"`
		Entries []struct {
			Family uint8      `json:"family"`
			Addr   netip.Addr `json:"addr"`
			NConns int64      `json:"nconns"`
		} `json:"entries"`
	}
	req := struct {
		Service serviceKeyWire `json:"service"`
	}{svc}

	if err := c.do(http.MethodGet, "/v1/laddr", req, &reply); err != nil {
		return err
	}
	if reply.Status != "Ok" {
		fmt.Println(reply.Status)
		return nil
	}
	for _, e := range reply.Entries {
		fmt.Printf("%s\tnconns=%d\n", e.Addr, e.NConns)
	}
	return nil
}

func (c *client) healthz() error {
	return c.do(http.MethodGet, "/healthz", nil, nil)
}
