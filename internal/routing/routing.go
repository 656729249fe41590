// Package routing maps each pipeline stage to the provider, model, and
// sampling temperature used for its gateway calls.
package routing

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/tikun-labs/sefirot-cli/internal/gateway"
	"github.com/tikun-labs/sefirot-cli/internal/model"
)

const defaultGeminiModel = "gemini-2.0-flash-exp"

// Route selects the provider, model, and sampling temperature for one call
// site.
type Route struct {
	Provider    string
	Model       string
	Temperature float64
}

// StageRoute pairs a stage with its resolved route, for listings.
type StageRoute struct {
	Stage model.StageID
	Route Route
}

// Table is the resolved stage → route mapping plus the three dual-perspective
// routes used only by the sigma variant of the third stage.
type Table struct {
	stages    map[model.StageID]Route
	west      Route
	east      Route
	synthesis Route
}

// Defaults returns the built-in routing table: every stage on Gemini flash
// with a stage-specific temperature, the east perspective on DeepSeek.
func Defaults() *Table {
	flash := func(temp float64) Route {
		return Route{Provider: "gemini", Model: defaultGeminiModel, Temperature: temp}
	}
	return &Table{
		stages: map[model.StageID]Route{
			model.StageKeter:    flash(0.3),
			model.StageChochmah: flash(0.7),
			model.StageBinah:    flash(0.5),
			model.StageChesed:   flash(0.7),
			model.StageGevurah:  flash(0.3),
			model.StageTiferet:  flash(0.6),
			model.StageNetzach:  flash(0.5),
			model.StageHod:      flash(0.7),
			model.StageYesod:    flash(0.4),
			model.StageMalchut:  flash(0.3),
		},
		west:      flash(0.6),
		east:      Route{Provider: "deepseek", Model: "deepseek-chat", Temperature: 0.6},
		synthesis: flash(0.5),
	}
}

// ForStage returns the route for a stage. Unmapped stages are a
// configuration error.
func (t *Table) ForStage(id model.StageID) (Route, error) {
	r, ok := t.stages[id]
	if !ok {
		return Route{}, &gateway.UnknownStageError{Stage: string(id)}
	}
	return r, nil
}

// West returns the route for the western-perspective call.
func (t *Table) West() Route { return t.west }

// East returns the route for the eastern-perspective call.
func (t *Table) East() Route { return t.east }

// Synthesis returns the route for the dual-perspective synthesis call.
func (t *Table) Synthesis() Route { return t.synthesis }

// Stages lists all stage routes in pipeline order.
func (t *Table) Stages() []StageRoute {
	out := make([]StageRoute, 0, len(model.StageOrder))
	for _, id := range model.StageOrder {
		out = append(out, StageRoute{Stage: id, Route: t.stages[id]})
	}
	return out
}

// routeOverride is one YAML route entry. A nil temperature keeps the
// default, so an explicit 0 remains expressible.
type routeOverride struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
}

func (o routeOverride) apply(r Route) Route {
	if o.Provider != "" {
		r.Provider = o.Provider
	}
	if o.Model != "" {
		r.Model = o.Model
	}
	if o.Temperature != nil {
		r.Temperature = *o.Temperature
	}
	return r
}

// Load reads a routing override file and applies it over the defaults.
// Stage names that are not part of the pipeline fail loading.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "routing: read config %s", path)
	}

	// The YAML has a top-level "routing" key
	var wrapper struct {
		Routing struct {
			Stages    map[string]routeOverride `yaml:"stages"`
			West      *routeOverride           `yaml:"west"`
			East      *routeOverride           `yaml:"east"`
			Synthesis *routeOverride           `yaml:"synthesis"`
		} `yaml:"routing"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "routing: parse config")
	}

	t := Defaults()
	for name, o := range wrapper.Routing.Stages {
		id := model.StageID(name)
		r, ok := t.stages[id]
		if !ok {
			return nil, &gateway.UnknownStageError{Stage: name}
		}
		t.stages[id] = o.apply(r)
	}
	if o := wrapper.Routing.West; o != nil {
		t.west = o.apply(t.west)
	}
	if o := wrapper.Routing.East; o != nil {
		t.east = o.apply(t.east)
	}
	if o := wrapper.Routing.Synthesis; o != nil {
		t.synthesis = o.apply(t.synthesis)
	}
	return t, nil
}
