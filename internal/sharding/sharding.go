package sharding

import (
	"fmt"
	"hash/crc32"
)

// ShardCount is the fixed number of event partitions.
const ShardCount = 1024

// CollectionKey partitions events that concern the whole todo list.
const CollectionKey = "all"

// GetShardID calculates the deterministic shard ID for a given entity ID.
func GetShardID(entityID string) int {
	checksum := crc32.ChecksumIEEE([]byte(entityID))
	return int(checksum % ShardCount)
}

// GetEventSubject returns the NATS subject for a given entity type and ID.
// Format: app.event.{shard_id}.{entity_type}.{entity_id}
func GetEventSubject(entityType, entityID string) string {
	shardID := GetShardID(entityID)
	return fmt.Sprintf("app.event.%d.%s.%s", shardID, entityType, entityID)
}
