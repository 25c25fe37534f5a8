package main

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fnatlb/lipalloc/pkg/control"
	"github.com/fnatlb/lipalloc/pkg/lipalloc"
	"github.com/fnatlb/lipalloc/pkg/sapool"
)

// bootstrapStaticServices parses c.StaticServices and registers each virtual
// service (creating it on first mention) plus its seed local address against
// reg. Every service draws from one sapool.BitmapPool sized by
// c.SAPortMin/c.SAPortMax, the SA-pool a real service needs to hand out
// lports at all.
func bootstrapStaticServices(c *Config, reg *control.ServiceRegistry, ifaces *lipalloc.IfaceTable, logger zerolog.Logger) error {
	if len(c.StaticServices) == 0 {
		return nil
	}

	sa := sapool.NewBitmapPool(c.SAPortMin, c.SAPortMax)

	for _, spec := range c.StaticServices {
		fields := strings.Split(spec, "|")
		if len(fields) != 5 {
			return fmt.Errorf("static service %q: want 5 |-separated fields (proto|vaddr|vport|ifname|addr), got %d", spec, len(fields))
		}
		protoS, vaddrS, vportS, ifname, addrS := fields[0], fields[1], fields[2], fields[3], fields[4]

		var proto lipalloc.Proto
		switch strings.ToLower(protoS) {
		case "tcp":
			proto = lipalloc.ProtoTCP
		case "udp":
			proto = lipalloc.ProtoUDP
		default:
			return fmt.Errorf("static service %q: unknown proto %q", spec, protoS)
		}

		vaddr, err := netip.ParseAddr(vaddrS)
		if err != nil {
			return fmt.Errorf("static service %q: parse vaddr: %w", spec, err)
		}
		vport, err := strconv.ParseUint(vportS, 10, 16)
		if err != nil {
			return fmt.Errorf("static service %q: parse vport: %w", spec, err)
		}
		addr, err := netip.ParseAddr(addrS)
		if err != nil {
			return fmt.Errorf("static service %q: parse addr: %w", spec, err)
		}

		key := lipalloc.ServiceKey{Family: lipalloc.FamilyOf(vaddr), Proto: proto, VAddr: vaddr, VPort: uint16(vport)}

		svc, ok := reg.Lookup(key)
		if !ok {
			svc = lipalloc.NewService(key, lipalloc.SchedulerRR, sa, ifaces, nil)
			reg.Register(key, svc)
		}

		ifaces.Register(ifname)
		if st := lipalloc.LaddrAdd(svc, lipalloc.FamilyOf(addr), addr, ifname); st != lipalloc.Ok {
			return fmt.Errorf("static service %q: LaddrAdd %s: %v", spec, addr, st)
		}

		logger.Info().
			Str("proto", protoS).
			Str("vaddr", vaddr.String()).
			Uint64("vport", vport).
			Str("ifname", ifname).
			Str("addr", addr.String()).
			Msg("registered static service address")
	}

	return nil
}
