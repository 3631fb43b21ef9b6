// Package ordering computes the scalar timeline position shared by episodes
// and movies. Shows occupy bands of 10000 keyed by their sort order, seasons
// bands of 100 inside that, so canonical catalog order and numeric key order
// always agree.
package ordering

// Episode returns the timeline key for an episode, given its show's sort
// order (nil counts as zero), season number, and episode number.
func Episode(showOrder *int, seasonNumber, episodeNumber int) int {
	return orderOrZero(showOrder)*10000 + seasonNumber*100 + episodeNumber
}

// Movie returns the timeline key for a movie from its sort order.
func Movie(sortOrder *int) int {
	return orderOrZero(sortOrder) * 10000
}

func orderOrZero(order *int) int {
	if order == nil {
		return 0
	}
	return *order
}
