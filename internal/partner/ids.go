package partner

// SiteIDForThingName derives the partner site id for a provisioned thing.
// One site is commissioned per device.
func SiteIDForThingName(thingName string) string {
	return "site-for-device::" + thingName
}

// DeviceIDForThingName derives the partner device id for a provisioned thing.
func DeviceIDForThingName(thingName string) string {
	return "device::" + thingName
}
