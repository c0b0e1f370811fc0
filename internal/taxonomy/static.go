package taxonomy

// Static returns the compiled-in default taxonomy. It is the fallback when
// the store holds no taxonomy rows, and the seed content for cmd/migrate.
func Static() Set {
	return NewSet([]Category{
		{Name: "Food & Dining", Subcategories: []string{
			"Restaurants",
			"Cafes & Bars",
			"Fast Food & Delivery",
			"Groceries",
			"Bakeries",
		}},
		{Name: "Transportation", Subcategories: []string{
			"Fuel",
			"Parking",
			"Public Transport",
			"Taxi & Rideshare",
			"Car Maintenance",
		}},
		{Name: "Housing", Subcategories: []string{
			"Rent",
			"Utilities",
			"Internet & TV",
			"Home Maintenance",
			"Furniture",
		}},
		{Name: "Shopping", Subcategories: []string{
			"Clothing",
			"Electronics",
			"Health & Beauty",
			"Gifts",
			"Other Shopping",
		}},
		{Name: "Entertainment", Subcategories: []string{
			"Subscriptions",
			"Movies & Events",
			"Hobbies",
			"Travel & Vacation",
		}},
		{Name: "Health", Subcategories: []string{
			"Pharmacy",
			"Doctor & Medical",
			"Gym & Fitness",
			"Insurance",
		}},
		{Name: "Financial", Subcategories: []string{
			"Bank Fees",
			"Interest Paid",
			"Investments",
			"Currency Exchange",
		}},
		{Name: "Income", Subcategories: []string{
			"Salary",
			"Business Income",
			"Interest Earned",
			"Refunds",
			"Other Income",
		}},
		{Name: "Transfers", Subcategories: []string{
			"Internal Transfer",
			"Transfer to Others",
			"Transfer from Others",
		}},
		{Name: "Other", Subcategories: []string{
			"Uncategorized",
			"Cash Withdrawal",
			"Miscellaneous",
		}},
	})
}
