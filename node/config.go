package node

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/ultiledger/go-benor/consensus"
)

const (
	TransportHTTP = "http"
	TransportZMQ  = "zmq"
)

var ErrUnsafeCluster = errors.New("cluster size must exceed three times the faulty budget")

type Config struct {
	// id of this node in [0, nodes)
	NodeID int
	// total number of nodes
	Nodes int
	// maximum number of faulty nodes tolerated
	FaultyNodes int
	// initial estimate of this node
	Initial consensus.Value
	// whether this node is silent
	Faulty bool
	// listen address of the http server
	Addr string
	// base urls of every node indexed by node id
	Peers []string
	// packet transport, http or zmq
	Transport string
	// zeromq endpoint bound by this node
	ZMQAddr string
	// zeromq endpoints of every node indexed by node id
	ZMQPeers []string
	// database backend of the decision journal
	DBBackend string
	// database file path
	DBPath string
	// run name used as journal key prefix
	Run string
}

// SetDefaults registers the default values of optional keys.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("transport", TransportHTTP)
	v.SetDefault("db_backend", "boltdb")
	v.SetDefault("run", "default")
	v.SetDefault("faulty", false)
}

func NewConfig(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	if !v.IsSet("node_id") {
		return nil, errors.New("node ID is missing")
	}
	if v.GetInt("nodes") <= 0 {
		return nil, errors.New("number of nodes is missing")
	}
	if !v.IsSet("faulty_nodes") {
		return nil, errors.New("number of faulty nodes is missing")
	}
	if v.GetString("initial_value") == "" {
		return nil, errors.New("initial value is missing")
	}
	if v.GetString("addr") == "" {
		return nil, errors.New("listen address is missing")
	}
	if len(v.GetStringSlice("peers")) == 0 {
		return nil, errors.New("peers are missing")
	}
	if v.GetString("db_backend") != "memdb" && v.GetString("db_path") == "" {
		return nil, errors.New("db path is empty")
	}

	initial, err := consensus.ParseValue(v.GetString("initial_value"))
	if err != nil {
		return nil, fmt.Errorf("parse initial value failed: %w", err)
	}

	c := &Config{
		NodeID:      v.GetInt("node_id"),
		Nodes:       v.GetInt("nodes"),
		FaultyNodes: v.GetInt("faulty_nodes"),
		Initial:     initial,
		Faulty:      v.GetBool("faulty"),
		Addr:        v.GetString("addr"),
		Peers:       v.GetStringSlice("peers"),
		Transport:   v.GetString("transport"),
		ZMQAddr:     v.GetString("zmq_addr"),
		ZMQPeers:    v.GetStringSlice("zmq_peers"),
		DBBackend:   v.GetString("db_backend"),
		DBPath:      v.GetString("db_path"),
		Run:         v.GetString("run"),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the consistency of the config.
func (c *Config) Validate() error {
	if c.Nodes <= 0 {
		return errors.New("number of nodes must be positive")
	}
	if c.NodeID < 0 || c.NodeID >= c.Nodes {
		return fmt.Errorf("node ID %d out of range [0, %d)", c.NodeID, c.Nodes)
	}
	if c.FaultyNodes < 0 {
		return errors.New("number of faulty nodes is negative")
	}
	if c.Nodes <= 3*c.FaultyNodes {
		return fmt.Errorf("%w: n=%d f=%d", ErrUnsafeCluster, c.Nodes, c.FaultyNodes)
	}
	if !c.Initial.Binary() {
		return fmt.Errorf("initial value %s is not binary", c.Initial)
	}
	if len(c.Peers) != c.Nodes {
		return fmt.Errorf("expect %d peers, got %d", c.Nodes, len(c.Peers))
	}
	switch c.Transport {
	case TransportHTTP:
	case TransportZMQ:
		if c.ZMQAddr == "" {
			return errors.New("zmq address is missing")
		}
		if len(c.ZMQPeers) != c.Nodes {
			return fmt.Errorf("expect %d zmq peers, got %d", c.Nodes, len(c.ZMQPeers))
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.Run == "" {
		return errors.New("run name is empty")
	}
	return nil
}

// peerMap indexes the addresses by node id.
func peerMap(addrs []string) map[int]string {
	m := make(map[int]string, len(addrs))
	for id, a := range addrs {
		m[id] = a
	}
	return m
}
