// Package ovs cross-checks the emulated switch fabric against the running
// Open vSwitch database.
//
// The check is advisory: the harness reports discrepancies between the
// topology model and the bridges OVSDB actually knows about, but never
// fails startup over them.
package ovs

// dbName is the Open vSwitch database name as served by ovsdb-server.
const dbName = "Open_vSwitch"

// Bridge maps the columns of the OVSDB Bridge table the verifier reads.
// Only a subset of the schema is declared; libovsdb ignores the rest.
type Bridge struct {
	UUID       string  `ovsdb:"_uuid"`
	Name       string  `ovsdb:"name"`
	DatapathID *string `ovsdb:"datapath_id"`
}
