package domain

// Document store collections.
const (
	CollectionInventory = "inventory"
	CollectionMovements = "stockMovements"
	CollectionBorrows   = "borrowingRequests"
	CollectionSales     = "sales"
	CollectionSettings  = "settings"
	// CollectionApplied holds one marker per movement the reconciler applied.
	CollectionApplied = "appliedMovements"
)

// Collections lists every collection the service reads or writes.
var Collections = []string{
	CollectionInventory,
	CollectionMovements,
	CollectionBorrows,
	CollectionSales,
	CollectionSettings,
	CollectionApplied,
}
