package redis

import "fmt"

const ns = "tripslot:v1"

// KeyListingSlots is a hash of cached slot listings, one field per date range.
func KeyListingSlots(listingID string) string {
	return fmt.Sprintf("%s:listing:%s:slots", ns, listingID)
}

func KeySlot(slotID string) string {
	return fmt.Sprintf("%s:slot:%s", ns, slotID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeyIdemBooking(slotID, customerID, idemKey string) string {
	return fmt.Sprintf("%s:idem:bookings:%s:%s:%s", ns, slotID, customerID, idemKey)
}

func KeyJobLock(job string) string {
	return fmt.Sprintf("%s:lock:job:%s", ns, job)
}

func ChannelSlotsChanged() string {
	return ns + ":slots:changed"
}
