// Package seed populates a fresh store: default documents from the
// shipped CUE, plus a demo entity catalog.
package seed

import (
	"context"
	"fmt"
	"log"

	"github.com/hearthhq/hearth/internal/defaults"
	"github.com/hearthhq/hearth/internal/entity"
	"github.com/hearthhq/hearth/internal/settings"
	"github.com/hearthhq/hearth/internal/store"
)

// Documents writes the default settings and household documents unless
// they already exist. Idempotent across restarts.
func Documents(ctx context.Context, st store.Store) error {
	for name, load := range map[string]func() (settings.Tree, error){
		store.DocSettings:  defaults.Settings,
		store.DocHousehold: defaults.Household,
	} {
		if _, ok, err := st.LoadDocument(ctx, name); err != nil {
			return fmt.Errorf("checking %s document: %w", name, err)
		} else if ok {
			log.Printf("%s document already present, skipping seed", name)
			continue
		}
		doc, err := load()
		if err != nil {
			return err
		}
		if err := st.SaveDocument(ctx, name, doc); err != nil {
			return fmt.Errorf("seeding %s document: %w", name, err)
		}
		log.Printf("seeded default %s document", name)
	}
	return nil
}

// DemoEntities upserts a small catalog so a fresh install has something
// to pick from before a real integration registers entities.
func DemoEntities(ctx context.Context, st store.Store) error {
	records := []entity.Record{
		{EntityID: "light.kitchen", Name: "Kitchen Light", Domain: "light", State: "off"},
		{EntityID: "light.living_room", Name: "Living Room Light", Domain: "light", State: "off"},
		{EntityID: "light.bedroom", Name: "Bedroom Light", Domain: "light", State: "off"},
		{EntityID: "light.hallway", Name: "Hallway Light", Domain: "light", State: "off"},
		{EntityID: "binary_sensor.bed", Name: "Bed Occupancy", Domain: "binary_sensor", State: "off"},
		{EntityID: "binary_sensor.front_door", Name: "Front Door", Domain: "binary_sensor", State: "off"},
		{EntityID: "sensor.kitchen_temp", Name: "Kitchen Temperature", Domain: "sensor", State: "21.0"},
		{EntityID: "sensor.bedroom_temp", Name: "Bedroom Temperature", Domain: "sensor", State: "19.5"},
		{EntityID: "media_player.living_room", Name: "Living Room Speaker", Domain: "media_player", State: "idle"},
		{EntityID: "device_tracker.phone", Name: "Phone", Domain: "device_tracker", State: "home"},
	}
	for _, rec := range records {
		if err := st.UpsertEntity(ctx, rec); err != nil {
			return fmt.Errorf("seeding entity %s: %w", rec.EntityID, err)
		}
	}
	return nil
}
