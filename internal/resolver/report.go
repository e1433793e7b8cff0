package resolver

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wowsync/wowsync/internal/provider"
)

// ReportConfig echoes the run configuration into the report document.
type ReportConfig struct {
	ScanDir  string
	CacheDir string
}

// WriteReport persists the resolution outcome as an ordered YAML mapping:
// one top-level key per provider in registration order, each mapping
// source name to the list of resolved addon ids, followed by the flat
// `skipped` list and a `config` echo. The document's key order is part of
// its contract, hence the explicit node construction.
func WriteReport(path string, res *Result, reg *provider.Registry, cfg ReportConfig) error {
	data, err := MarshalReport(res, reg, cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// MarshalReport renders the report document (see WriteReport).
func MarshalReport(res *Result, reg *provider.Registry, cfg ReportConfig) ([]byte, error) {
	root := mappingNode()

	for _, pname := range reg.Names() {
		provNode := mappingNode()
		for _, src := range res.Sources(reg) {
			if src.ProviderName() != pname {
				continue
			}
			var ids []string
			for _, id := range res.IDs {
				if res.Assigned[id] == src {
					ids = append(ids, id)
				}
			}
			appendPair(provNode, scalarNode(src.Name()), seqNode(ids))
		}
		appendPair(root, scalarNode(pname), provNode)
	}

	appendPair(root, scalarNode("skipped"), seqNode(res.Skipped))

	configNode := mappingNode()
	scanNode := mappingNode()
	appendPair(scanNode, scalarNode("dir"), scalarNode(cfg.ScanDir))
	cacheNode := mappingNode()
	appendPair(cacheNode, scalarNode("dir"), scalarNode(cfg.CacheDir))
	appendPair(configNode, scalarNode("scan"), scanNode)
	appendPair(configNode, scalarNode("cache"), cacheNode)
	appendPair(root, scalarNode("config"), configNode)

	data, err := yaml.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("marshaling report: %w", err)
	}
	return data, nil
}

func mappingNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func scalarNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func seqNode(items []string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, item := range items {
		n.Content = append(n.Content, scalarNode(item))
	}
	return n
}

func appendPair(m, k, v *yaml.Node) {
	m.Content = append(m.Content, k, v)
}
