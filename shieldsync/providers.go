package shieldsync

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/veltashop/shieldsync_backend/config"
	"github.com/veltashop/shieldsync_backend/models"
	"github.com/veltashop/shieldsync_backend/utils"
)

// CourierResolution is the answer to "which courier carries this order":
// either one courier for every shipment, or a mapping per tracking number
// (note-based integrations can ship one order through several carriers).
type CourierResolution struct {
	Single     string
	ByTracking map[string]string
}

func (r CourierResolution) For(trackingNumber string) string {
	if len(r.ByTracking) > 0 {
		return r.ByTracking[trackingNumber]
	}
	return r.Single
}

// TrackingProvider normalizes one third-party tracking integration into
// canonical shipment records. Adding a variant must not touch the engine:
// the first active provider wins at runtime.
type TrackingProvider interface {
	Name() string
	IsActive(ctx context.Context) bool
	ShippingProviderName(ctx context.Context, orderID uint) (CourierResolution, error)
	ShippingInfo(ctx context.Context, orderID uint) ([]ShipmentTracking, error)
	// Reconcile is the provider-driven update path: diff the integration's
	// current tracking data against what was previously mirrored, cancel
	// stale numbers and create new ones.
	Reconcile(ctx context.Context, orderID uint) error
}

// providerDeps are the collaborators every variant needs.
type providerDeps struct {
	Store    OrderSource
	Meta     AttributeStore
	Client   Client
	Settings SettingsReader
	Logger   *logrus.Logger
}

func newProviderDeps(store OrderSource, meta AttributeStore, client Client, settings SettingsReader) providerDeps {
	return providerDeps{
		Store:    store,
		Meta:     meta,
		Client:   client,
		Settings: settings,
		Logger:   config.GetLogger(),
	}
}

func (d providerDeps) integrationActive(ctx context.Context, name string) bool {
	active, err := d.Settings.OptionList(ctx, models.SettingKeyActiveIntegrations)
	if err != nil {
		return false
	}
	for _, a := range active {
		if a == name {
			return true
		}
	}
	return false
}

func (d providerDeps) orderProductIDs(ctx context.Context, orderID uint) ([]uint, error) {
	order, err := d.Store.GetOrder(ctx, orderID)
	if err != nil || order == nil {
		return nil, err
	}
	return order.ProductUnitIDs(), nil
}

// addTrackingMeta persists the mirrored tracking state the way every
// variant does: marker flag plus the current tracking value, and the
// courier when the variant knows a single one.
func (d providerDeps) addTrackingMeta(ctx context.Context, orderID uint, trackingValue string, courierID string) error {
	values := map[string]string{
		MetaShipmentAPICalled: FlagSuccess,
		MetaTrackingNumber:    trackingValue,
	}
	if courierID != "" {
		values[MetaTrackingProvider] = courierID
	}
	return d.Meta.Set(ctx, orderID, values)
}

// NotesTrackingProvider reads tracking data out of free-text system order
// notes written by the ShipEasy fulfillment plugin. A note is only parsed
// when it carries the "Tracking Number" marker, and only yields a record
// when both the tracking number and the carrier key are present.
type NotesTrackingProvider struct {
	deps providerDeps
}

func NewNotesTrackingProvider(store OrderSource, meta AttributeStore, client Client, settings SettingsReader) *NotesTrackingProvider {
	return &NotesTrackingProvider{deps: newProviderDeps(store, meta, client, settings)}
}

func (p *NotesTrackingProvider) Name() string { return "shipeasy-notes" }

func (p *NotesTrackingProvider) IsActive(ctx context.Context) bool {
	return p.deps.integrationActive(ctx, p.Name())
}

type noteTrackData struct {
	TrackingNumber string
	CourierID      string
}

func parseTrackingNote(content string) (noteTrackData, bool) {
	if !strings.Contains(content, "Tracking Number") {
		return noteTrackData{}, false
	}
	var data noteTrackData
	content = strings.ReplaceAll(content, "<br/>", "\n")
	for _, line := range strings.Split(content, "\n") {
		label, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		switch strings.TrimSpace(label) {
		case "Shipping Tracking Number":
			data.TrackingNumber = strings.TrimSpace(value)
		case "Carrier Key":
			data.CourierID = strings.TrimSpace(value)
		}
	}
	if data.TrackingNumber == "" || data.CourierID == "" {
		return noteTrackData{}, false
	}
	return data, true
}

func (p *NotesTrackingProvider) parsedNotes(ctx context.Context, orderID uint) ([]noteTrackData, error) {
	notes, err := p.deps.Store.OrderNotes(ctx, orderID)
	if err != nil {
		return nil, err
	}
	var parsed []noteTrackData
	for _, note := range notes {
		if data, ok := parseTrackingNote(note.Content); ok {
			parsed = append(parsed, data)
		}
	}
	return parsed, nil
}

func (p *NotesTrackingProvider) ShippingProviderName(ctx context.Context, orderID uint) (CourierResolution, error) {
	parsed, err := p.parsedNotes(ctx, orderID)
	if err != nil {
		return CourierResolution{}, err
	}
	couriers := map[string]string{}
	for _, data := range parsed {
		couriers[data.TrackingNumber] = data.CourierID
	}
	return CourierResolution{ByTracking: couriers}, nil
}

func (p *NotesTrackingProvider) ShippingInfo(ctx context.Context, orderID uint) ([]ShipmentTracking, error) {
	parsed, err := p.parsedNotes(ctx, orderID)
	if err != nil || len(parsed) == 0 {
		return nil, err
	}
	productIDs, err := p.deps.orderProductIDs(ctx, orderID)
	if err != nil {
		return nil, err
	}
	var info []ShipmentTracking
	for _, data := range parsed {
		info = append(info, ShipmentTracking{
			SourceOrderID:    orderID,
			SourceProductIDs: productIDs,
			CourierID:        data.CourierID,
			TrackingNumber:   data.TrackingNumber,
		})
	}
	return info, nil
}

// Reconcile diffs the notes against the previously mirrored set: numbers
// that vanished from the notes are cancelled remotely, new numbers are
// created, and the full current set is persisted. Everything previously
// stored is cancelled only when the notes are gone entirely (plugin
// disabled); notes that merely stopped parsing leave the mirrored set alone.
func (p *NotesTrackingProvider) Reconcile(ctx context.Context, orderID uint) error {
	stored, _, err := p.deps.Meta.Get(ctx, orderID, MetaTrackingNumber)
	if err != nil {
		return err
	}
	existing := SplitTrackingNumbers(stored)

	notes, err := p.deps.Store.OrderNotes(ctx, orderID)
	if err != nil {
		return err
	}
	var parsed []noteTrackData
	for _, note := range notes {
		if data, ok := parseTrackingNote(note.Content); ok {
			parsed = append(parsed, data)
		}
	}

	if len(parsed) == 0 {
		if len(notes) > 0 || len(existing) == 0 {
			// Unrelated notes remain, so the integration may still be
			// installed; without a parsed set there is nothing to diff
			// against.
			return nil
		}
		productIDs, err := p.deps.orderProductIDs(ctx, orderID)
		if err != nil {
			return err
		}
		for _, number := range existing {
			cancelTracking(ctx, p.deps.Client, p.deps.Logger, orderID, number, productIDs)
		}
		return nil
	}

	productIDs, err := p.deps.orderProductIDs(ctx, orderID)
	if err != nil {
		return err
	}

	existingSet := map[string]bool{}
	for _, number := range existing {
		existingSet[number] = true
	}

	var current []string
	currentSet := map[string]bool{}
	for _, data := range parsed {
		current = append(current, data.TrackingNumber)
		currentSet[data.TrackingNumber] = true
		if existingSet[data.TrackingNumber] {
			continue
		}

		res, terr := p.deps.Client.GetShipment(ctx, data.TrackingNumber, orderID)
		if terr != nil || res.Status == 200 {
			continue
		}
		record := ShipmentTracking{
			SourceOrderID:    orderID,
			SourceProductIDs: productIDs,
			CourierID:        data.CourierID,
			TrackingNumber:   data.TrackingNumber,
		}
		if _, terr := p.deps.Client.CreateShipment(ctx, data.TrackingNumber, record); terr != nil {
			config.LogError(p.deps.Logger, "shieldsync", "NotesReconcile", "shipments", map[string]interface{}{
				"params":   record,
				"method":   "POST",
				"endpoint": "shipments",
			}, terr)
			return terr
		}
	}

	for _, number := range existing {
		if !currentSet[number] {
			cancelTracking(ctx, p.deps.Client, p.deps.Logger, orderID, number, productIDs)
		}
	}

	if len(current) > 0 {
		return p.deps.addTrackingMeta(ctx, orderID, JoinTrackingNumbers(current), "")
	}
	return nil
}

// FieldTrackingProvider reads the fixed attribute names written by the
// TrackPilot plugin directly on the order.
type FieldTrackingProvider struct {
	deps providerDeps
}

// TrackPilot attribute names on the host order.
const (
	fieldTrackingCode = "tracking_code"
	fieldCarrierName  = "carrier_name"
	fieldPickedUp     = "picked_up"
)

func NewFieldTrackingProvider(store OrderSource, meta AttributeStore, client Client, settings SettingsReader) *FieldTrackingProvider {
	return &FieldTrackingProvider{deps: newProviderDeps(store, meta, client, settings)}
}

func (p *FieldTrackingProvider) Name() string { return "trackpilot" }

func (p *FieldTrackingProvider) IsActive(ctx context.Context) bool {
	return p.deps.integrationActive(ctx, p.Name())
}

func (p *FieldTrackingProvider) ShippingProviderName(ctx context.Context, orderID uint) (CourierResolution, error) {
	courier, _, err := p.deps.Meta.Get(ctx, orderID, MetaTrackingProvider)
	if err != nil {
		return CourierResolution{}, err
	}
	return CourierResolution{Single: courier}, nil
}

func (p *FieldTrackingProvider) ShippingInfo(ctx context.Context, orderID uint) ([]ShipmentTracking, error) {
	trackingNumber, _, err := p.deps.Meta.Get(ctx, orderID, fieldTrackingCode)
	if err != nil {
		return nil, err
	}
	pickedUp, _, err := p.deps.Meta.Get(ctx, orderID, fieldPickedUp)
	if err != nil {
		return nil, err
	}
	// A picked-up order was fulfilled locally; there is nothing to insure
	// in transit.
	if trackingNumber == "" || pickedUp != "" {
		return nil, nil
	}

	productIDs, err := p.deps.orderProductIDs(ctx, orderID)
	if err != nil {
		return nil, err
	}
	carrierName, _, err := p.deps.Meta.Get(ctx, orderID, fieldCarrierName)
	if err != nil {
		return nil, err
	}
	return []ShipmentTracking{{
		SourceOrderID:    orderID,
		SourceProductIDs: productIDs,
		CourierID:        utils.CourierSlug(carrierName),
		TrackingNumber:   trackingNumber,
	}}, nil
}

// Reconcile mirrors the current TrackPilot tracking code, cancelling the
// previously mirrored number first when it changed.
func (p *FieldTrackingProvider) Reconcile(ctx context.Context, orderID uint) error {
	trackingNumber, _, err := p.deps.Meta.Get(ctx, orderID, fieldTrackingCode)
	if err != nil {
		return err
	}
	pickedUp, _, err := p.deps.Meta.Get(ctx, orderID, fieldPickedUp)
	if err != nil {
		return err
	}
	if trackingNumber == "" || pickedUp != "" {
		return nil
	}

	carrierName, _, err := p.deps.Meta.Get(ctx, orderID, fieldCarrierName)
	if err != nil {
		return err
	}
	courierID := utils.CourierSlug(carrierName)

	productIDs, err := p.deps.orderProductIDs(ctx, orderID)
	if err != nil {
		return err
	}

	previous, _, err := p.deps.Meta.Get(ctx, orderID, MetaTrackingNumber)
	if err != nil {
		return err
	}
	if previous != "" && previous != trackingNumber {
		cancelTracking(ctx, p.deps.Client, p.deps.Logger, orderID, previous, productIDs)
	}

	res, terr := p.deps.Client.GetShipment(ctx, trackingNumber, orderID)
	if terr != nil || res.Status == 200 {
		return nil
	}

	record := ShipmentTracking{
		SourceOrderID:    orderID,
		SourceProductIDs: productIDs,
		CourierID:        courierID,
		TrackingNumber:   trackingNumber,
	}
	if _, terr := p.deps.Client.CreateShipment(ctx, trackingNumber, record); terr != nil {
		config.LogError(p.deps.Logger, "shieldsync", "FieldReconcile", "shipments", map[string]interface{}{
			"params":   record,
			"method":   "POST",
			"endpoint": "shipments",
		}, terr)
		return terr
	}

	return p.deps.addTrackingMeta(ctx, orderID, trackingNumber, courierID)
}
