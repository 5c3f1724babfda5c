package kafka

// Topic names the change topic of one collection, e.g. docstore.inventory.
func Topic(prefix, collection string) string { return prefix + "." + collection }

// Partition key = document id, so every change of one document stays in order.
func PartitionKey(docID string) []byte { return []byte(docID) }
