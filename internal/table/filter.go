package table

// ModalColumns returns the most frequent row length. Ties go to the length
// seen first. Zero rows give 0.
func ModalColumns(rows []Row) int {
	counts := make(map[int]int)
	order := make([]int, 0)
	for _, r := range rows {
		n := len(r)
		if _, seen := counts[n]; !seen {
			order = append(order, n)
		}
		counts[n]++
	}

	modal, best := 0, 0
	for _, n := range order {
		if counts[n] > best {
			modal, best = n, counts[n]
		}
	}
	return modal
}

// FilterBody keeps the rows whose length plus tolerance reaches the modal
// column count. Rows longer than the mode are always kept.
func FilterBody(rows []Row, tolerance int) Table {
	modal := ModalColumns(rows)

	body := make(Table, 0, len(rows))
	for _, r := range rows {
		if len(r)+tolerance >= modal {
			body = append(body, r)
		}
	}
	return body
}
