package mqtt

import "fmt"

// TopicPrefix is the root of every media server topic.
const TopicPrefix = "mediaserver"

// Topics builds media server topic names.
//
//	mediaserver/{client_id}/status   retained lifecycle status and Last Will
type Topics struct{}

// Status returns the retained status topic of one server instance.
//
// Example: mediaserver/living-room/status
func (Topics) Status(clientID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefix, clientID)
}

// AllStatus matches the status topic of every instance.
func (Topics) AllStatus() string {
	return TopicPrefix + "/+/status"
}
