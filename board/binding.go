package board

import "spibind/core"

// binding is the default DevOps for one enabled bus, composed from the
// strategies its configuration calls for
type binding struct {
	id     core.SPIBusID
	sel    core.Selector
	status core.StatusReporter
	track  *tracker
}

var _ core.DevOps = (*binding)(nil)

func (b *binding) Select(dev core.DeviceID, selected bool) {
	b.track.onSelect(dev, selected)
	b.sel.Select(dev, selected)
}

func (b *binding) Status(dev core.DeviceID) core.Status {
	return b.status.Status(dev)
}

// cmdDataBinding is a binding built with the command/data feature
type cmdDataBinding struct {
	*binding
	cd *cmdDataLines
}

var _ core.CmdDataSelector = (*cmdDataBinding)(nil)

func (b *cmdDataBinding) CmdData(dev core.DeviceID, cmd bool) error {
	b.track.onCmdData(dev, cmd)
	return b.cd.CmdData(dev, cmd)
}

// resolve picks select, status and command/data strategies for bus once,
// so no call site has to look at the configuration again
func resolve(bus BusConfig, cmdData bool, gpio core.GPIODriver) (core.DevOps, *tracker) {
	b := &binding{
		id:     bus.ID,
		status: noSense{},
		track:  newTracker(bus.ID),
	}

	switch bus.Select {
	case SelectGPIO:
		b.sel = newGPIOSelect(bus, gpio)
	default:
		b.sel = hardwareSelect{bus: bus.ID}
	}

	if hasSense(bus) {
		b.status = newGPIOSense(bus, gpio)
	}

	if !cmdData {
		return b, b.track
	}
	return &cmdDataBinding{binding: b, cd: newCmdDataLines(bus, gpio)}, b.track
}
