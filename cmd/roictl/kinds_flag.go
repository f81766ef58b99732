package main

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/anime-shed/roi-gridview-go/internal/strategy"
)

// kindsValue collects repeated --strategy flags into sort keys, most
// significant first
type kindsValue struct {
	kinds []strategy.Kind
}

var _ pflag.Value = (*kindsValue)(nil)

func (v *kindsValue) String() string {
	names := make([]string, len(v.kinds))
	for i, k := range v.kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ",")
}

func (v *kindsValue) Set(s string) error {
	for _, name := range strings.Split(s, ",") {
		k, err := strategy.ParseKind(strings.TrimSpace(name))
		if err != nil {
			return err
		}
		v.kinds = append(v.kinds, k)
	}
	return nil
}

func (v *kindsValue) Type() string {
	return "strategy"
}

func strategyNames() string {
	kinds := strategy.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}
