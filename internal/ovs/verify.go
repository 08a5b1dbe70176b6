package ovs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ovn-org/libovsdb/client"
	"github.com/ovn-org/libovsdb/model"

	"github.com/dantte-lp/faultline/internal/topo"
)

// -------------------------------------------------------------------------
// Verification Result
// -------------------------------------------------------------------------

// Result holds the outcome of one bridge cross-check.
type Result struct {
	// Present lists topology switches found as OVSDB bridges.
	Present []string

	// Missing lists topology switches with no matching OVSDB bridge.
	Missing []string

	// DPIDMismatches lists switches whose bridge exists but carries a
	// different datapath ID than the topology declares.
	DPIDMismatches []string
}

// OK reports whether every topology switch was found with the expected
// datapath ID.
func (r Result) OK() bool {
	return len(r.Missing) == 0 && len(r.DPIDMismatches) == 0
}

// String summarizes the result for logging.
func (r Result) String() string {
	return fmt.Sprintf("%d present, %d missing, %d dpid mismatches",
		len(r.Present), len(r.Missing), len(r.DPIDMismatches))
}

// -------------------------------------------------------------------------
// Verifier
// -------------------------------------------------------------------------

// Verifier connects to an OVSDB server and compares its Bridge table
// against a topology model.
type Verifier struct {
	endpoint string
	logger   *slog.Logger
}

// NewVerifier creates a Verifier for the given OVSDB endpoint, e.g.
// "unix:/var/run/openvswitch/db.sock" or "tcp:127.0.0.1:6640".
func NewVerifier(endpoint string, logger *slog.Logger) *Verifier {
	return &Verifier{
		endpoint: endpoint,
		logger:   logger.With(slog.String("component", "ovs.verifier")),
	}
}

// Verify connects to OVSDB, reads the Bridge table, and compares it with
// the switches in t. The connection is torn down before returning.
func (v *Verifier) Verify(ctx context.Context, t *topo.Topology) (Result, error) {
	bridges, err := v.listBridges(ctx)
	if err != nil {
		return Result{}, err
	}

	byName := make(map[string]*Bridge, len(bridges))
	for _, b := range bridges {
		byName[b.Name] = b
	}

	var res Result
	for _, sw := range t.Switches() {
		b, ok := byName[sw.Name]
		if !ok {
			res.Missing = append(res.Missing, sw.Name)
			continue
		}

		if b.DatapathID != nil && *b.DatapathID != sw.DPIDString() {
			v.logger.Warn("datapath id mismatch",
				slog.String("switch", sw.Name),
				slog.String("want", sw.DPIDString()),
				slog.String("got", *b.DatapathID),
			)
			res.DPIDMismatches = append(res.DPIDMismatches, sw.Name)
			continue
		}

		res.Present = append(res.Present, sw.Name)
	}

	sort.Strings(res.Present)
	sort.Strings(res.Missing)
	sort.Strings(res.DPIDMismatches)

	return res, nil
}

// listBridges opens a short-lived OVSDB session and returns the Bridge table.
func (v *Verifier) listBridges(ctx context.Context) ([]*Bridge, error) {
	dbModel, err := model.NewClientDBModel(dbName, map[string]model.Model{
		"Bridge": &Bridge{},
	})
	if err != nil {
		return nil, fmt.Errorf("build ovsdb client model: %w", err)
	}

	c, err := client.NewOVSDBClient(dbModel, client.WithEndpoint(v.endpoint))
	if err != nil {
		return nil, fmt.Errorf("create ovsdb client for %s: %w", v.endpoint, err)
	}

	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to ovsdb at %s: %w", v.endpoint, err)
	}
	defer c.Disconnect()

	if _, err := c.MonitorAll(ctx); err != nil {
		return nil, fmt.Errorf("monitor ovsdb: %w", err)
	}

	var bridges []*Bridge
	if err := c.List(ctx, &bridges); err != nil {
		return nil, fmt.Errorf("list ovsdb bridges: %w", err)
	}

	return bridges, nil
}
