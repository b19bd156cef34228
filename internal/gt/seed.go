package gt

// Demo content written into an empty store on first access.

const demoStudentID = "demo-student-1"

func demoStudents() []Student {
	return []Student{
		{ID: demoStudentID, Name: "Sample Student"},
	}
}

func demoGoals() []Goal {
	return []Goal{
		{
			ID:          "demo-goal-1",
			StudentID:   demoStudentID,
			Title:       "Request help using a full sentence",
			Description: "Uses a complete sentence to ask an adult for help in 4 of 5 opportunities.",
			Icon:        "chat",
			Status:      GoalInProgress,
		},
		{
			ID:          "demo-goal-2",
			StudentID:   demoStudentID,
			Title:       "Follow a two-step direction",
			Description: "Completes a two-step classroom direction with no more than one prompt.",
			Icon:        "steps",
			Status:      GoalInProgress,
		},
	}
}
