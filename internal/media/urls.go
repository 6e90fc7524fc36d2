package media

import "fmt"

// ServiceURL builds the canonical URL for a series on its originating
// list service. This is a pure function of the identity key; it is the
// link embedded in rendered notification messages.
func ServiceURL(service ListService, mediaType MediaType, serviceID string) string {
	switch service {
	case Anilist:
		return fmt.Sprintf("https://anilist.co/%s/%s", mediaType, serviceID)
	case MyAnimeList:
		return fmt.Sprintf("https://myanimelist.net/%s/%s", mediaType, serviceID)
	case Mangadex:
		return fmt.Sprintf("https://mangadex.org/title/%s", serviceID)
	case Kitsu:
		return fmt.Sprintf("https://kitsu.io/%s/%s", mediaType, serviceID)
	}

	return ""
}

// URL returns the canonical service URL for this item.
func (item *Item) URL() string {
	return ServiceURL(item.Service, item.Type, item.ServiceID)
}
