package nameserver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/evanofslack/zonesync/internal/record"
)

const defaultPort = "53"

// TSIG holds the transaction signature used to authorize zone transfers.
type TSIG struct {
	KeyName   string `yaml:"keyName"`
	Secret    string `yaml:"secret"`
	Algorithm string `yaml:"algorithm"`
}

func (t *TSIG) algorithm() string {
	if t.Algorithm == "" {
		return dns.HmacSHA256
	}
	return dns.Fqdn(strings.ToLower(t.Algorithm))
}

// AXFR queries nameservers with a full zone transfer over TCP.
type AXFR struct {
	Port string
	TSIG *TSIG
}

func NewAXFR(tsig *TSIG) *AXFR {
	if tsig != nil && tsig.KeyName == "" {
		tsig = nil
	}
	return &AXFR{Port: defaultPort, TSIG: tsig}
}

func (a *AXFR) Query(ctx context.Context, nameserver, zone string) (record.Set, error) {
	zone = record.NormalizeName(zone)
	msg := new(dns.Msg)
	msg.SetAxfr(zone)

	t := &dns.Transfer{}
	if deadline, ok := ctx.Deadline(); ok {
		d := time.Until(deadline)
		if d <= 0 {
			return nil, context.DeadlineExceeded
		}
		t.DialTimeout, t.ReadTimeout, t.WriteTimeout = d, d, d
	}
	if a.TSIG != nil {
		name := dns.Fqdn(a.TSIG.KeyName)
		msg.SetTsig(name, a.TSIG.algorithm(), 300, time.Now().Unix())
		t.TsigSecret = map[string]string{name: a.TSIG.Secret}
	}

	env, err := t.In(msg, a.address(nameserver))
	if err != nil {
		return nil, fmt.Errorf("axfr %s from %s: %w", zone, nameserver, err)
	}
	defer t.Close()

	var rrs []dns.RR
	for {
		select {
		case <-ctx.Done():
			// unblock the transfer goroutine so it can exit
			go func() {
				for range env {
				}
			}()
			return nil, ctx.Err()
		case e, ok := <-env:
			if !ok {
				return record.FromRRs("axfr from "+nameserver, rrs)
			}
			if e.Error != nil {
				return nil, fmt.Errorf("axfr %s from %s: %w", zone, nameserver, e.Error)
			}
			rrs = append(rrs, e.RR...)
		}
	}
}

func (a *AXFR) address(nameserver string) string {
	if _, _, err := net.SplitHostPort(nameserver); err == nil {
		return nameserver
	}
	port := a.Port
	if port == "" {
		port = defaultPort
	}
	return net.JoinHostPort(strings.TrimSuffix(nameserver, "."), port)
}
