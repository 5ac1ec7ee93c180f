package sdspi

// Bind wires a card to the given SPI bus, chip-select pin and card-detect
// pin, and returns its handle (spec §6: `bind(port, cb) -> card handle`).
// No initialization happens at bind time; attach a Monitor separately and
// call Poll on card-detect edges to drive it. Tunables come from
// DefaultConfig; use BindWithConfig to load them from an INI file instead.
func Bind(bus SPIBus, csn Pin) *Card {
	return BindWithConfig(bus, csn, DefaultConfig())
}

// BindWithConfig is Bind with caller-supplied tunables (clock speeds and
// the R1/data-token/ACMD41/idle retry caps, spec §10.3), the way LoadConfig
// populates a Config from an INI file for cmd/sdspi.
func BindWithConfig(bus SPIBus, csn Pin, cfg *Config) *Card {
	gw := newGateway(bus, csn)
	card := &Card{gw: gw, cfg: cfg}
	card.serial = newSerializer(gw)
	return card
}
