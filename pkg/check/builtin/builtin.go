// Package builtin registers the concrete check types shipped with aemawait.
package builtin

import (
	"github.com/kylerisse/aemawait/pkg/check"
	"github.com/kylerisse/aemawait/pkg/check/bundles"
	"github.com/kylerisse/aemawait/pkg/check/components"
	"github.com/kylerisse/aemawait/pkg/check/events"
	"github.com/kylerisse/aemawait/pkg/check/help"
	"github.com/kylerisse/aemawait/pkg/check/http"
	"github.com/kylerisse/aemawait/pkg/check/installer"
	"github.com/kylerisse/aemawait/pkg/check/resolve"
	"github.com/kylerisse/aemawait/pkg/check/timeout"
	"github.com/kylerisse/aemawait/pkg/check/unavailable"
	"github.com/kylerisse/aemawait/pkg/check/unchanged"
)

var factories = map[string]check.Factory{
	bundles.TypeName:     bundles.Factory,
	components.TypeName:  components.Factory,
	events.TypeName:      events.Factory,
	help.TypeName:        help.Factory,
	http.TypeName:        http.Factory,
	installer.TypeName:   installer.Factory,
	resolve.TypeName:     resolve.Factory,
	timeout.TypeName:     timeout.Factory,
	unavailable.TypeName: unavailable.Factory,
	unchanged.TypeName:   unchanged.Factory,
}

// Register adds every built-in check type to reg.
func Register(reg *check.Registry) error {
	for name, factory := range factories {
		if err := reg.Register(name, factory); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding every built-in check type.
func NewRegistry() *check.Registry {
	reg := check.NewRegistry()
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}
