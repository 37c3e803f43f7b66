package repository

import "strconv"

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
