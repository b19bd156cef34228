package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"goaltrack/internal/app"
	"goaltrack/internal/gt"
)

// student command
var studentCmd = &cobra.Command{
	Use:   "student",
	Short: "Manage students",
}

var studentAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a student",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		photo, _ := cmd.Flags().GetString("photo")

		a, err := newApp(cmd.Context(), "AddStudent")
		if err != nil {
			return err
		}
		defer closeApp(a)

		s, err := a.AddStudent(cmd.Context(), args[0], photo)
		if err != nil {
			return err
		}
		fmt.Printf("Added student %s (%s)\n", s.Name, s.ID)
		return nil
	},
}

var studentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List students in display order",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListStudents")
		if err != nil {
			return err
		}
		defer closeApp(a)

		students, err := a.Tracker().OrderedStudents(cmd.Context())
		if err != nil {
			return err
		}
		if len(students) == 0 {
			fmt.Println("No students.")
			return nil
		}
		for _, s := range students {
			fmt.Printf("%s  %s\n", s.ID, s.Name)
		}
		return nil
	},
}

var studentRenameCmd = &cobra.Command{
	Use:   "rename ID NAME",
	Short: "Rename a student",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "RenameStudent")
		if err != nil {
			return err
		}
		defer closeApp(a)

		s, err := a.Tracker().Student(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		s.Name = args[1]
		return a.Tracker().UpdateStudent(cmd.Context(), *s)
	},
}

var studentRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a student with all goals and logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "DeleteStudent")
		if err != nil {
			return err
		}
		defer closeApp(a)

		return a.Tracker().DeleteStudent(cmd.Context(), args[0])
	},
}

var studentOrderCmd = &cobra.Command{
	Use:   "order ID...",
	Short: "Set the display order of students",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "SetStudentOrder")
		if err != nil {
			return err
		}
		defer closeApp(a)

		return a.Tracker().SetStudentOrder(cmd.Context(), args)
	},
}

// goal command
var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Manage goals",
}

var goalAddCmd = &cobra.Command{
	Use:   "add STUDENT_ID TITLE",
	Short: "Add a goal to a student",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		icon, _ := cmd.Flags().GetString("icon")

		a, err := newApp(cmd.Context(), "AddGoal")
		if err != nil {
			return err
		}
		defer closeApp(a)

		g, err := a.AddGoal(cmd.Context(), args[0], args[1], description, icon)
		if err != nil {
			return err
		}
		fmt.Printf("Added goal %q (%s)\n", g.Title, g.ID)
		return nil
	},
}

var goalListCmd = &cobra.Command{
	Use:   "list STUDENT_ID",
	Short: "List a student's goals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListGoals")
		if err != nil {
			return err
		}
		defer closeApp(a)

		detail, err := a.Tracker().StudentDetail(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(detail.Goals) == 0 {
			fmt.Printf("%s has no goals.\n", detail.Student.Name)
			return nil
		}
		for _, gd := range detail.Goals {
			latest := "-"
			if n := len(gd.Logs); n > 0 {
				latest = fmt.Sprintf("%.0f%%", gd.Logs[n-1].Value)
			}
			fmt.Printf("%s  %-12s  %4d logs  latest %-5s  %s\n",
				gd.Goal.ID, gd.Goal.Status, len(gd.Logs), latest, gd.Goal.Title)
		}
		return nil
	},
}

var goalStatusCmd = &cobra.Command{
	Use:   "status ID STATUS",
	Short: "Set a goal's status (in-progress, completed, on-hold)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "SetGoalStatus")
		if err != nil {
			return err
		}
		defer closeApp(a)

		return a.SetGoalStatus(cmd.Context(), args[0], args[1])
	},
}

var goalRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a goal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "DeleteGoal")
		if err != nil {
			return err
		}
		defer closeApp(a)

		return a.Tracker().DeleteGoal(cmd.Context(), args[0])
	},
}

var goalReorderCmd = &cobra.Command{
	Use:   "reorder STUDENT_ID ID...",
	Short: "Set the order of a student's goals",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ReorderGoals")
		if err != nil {
			return err
		}
		defer closeApp(a)

		return a.Tracker().ReorderGoals(cmd.Context(), args[0], args[1:])
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Record and review observations",
}

var logAddCmd = &cobra.Command{
	Use:   "add GOAL_ID VALUE",
	Short: "Record an observation",
	Long: `Record an observation for a goal. VALUE is a percentage.

--at accepts RFC 3339, "2006-01-02 15:04", a date, or phrases such as
"yesterday 3pm". --media attaches a photo or video; it is uploaded in the
background and never delays the write.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, _ := cmd.Flags().GetString("prompt")
		notes, _ := cmd.Flags().GetString("notes")
		at, _ := cmd.Flags().GetString("at")
		media, _ := cmd.Flags().GetString("media")

		a, err := newApp(cmd.Context(), "AddLog")
		if err != nil {
			return err
		}
		defer closeApp(a)

		l, err := a.AddLog(cmd.Context(), app.LogRequest{
			GoalID:    args[0],
			Value:     args[1],
			Prompt:    prompt,
			At:        at,
			Notes:     notes,
			MediaPath: media,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Logged %.0f%% (%s) at %s\n", l.Value, l.PromptLevel, l.Time().Format("2006-01-02 15:04"))
		if l.Media != nil {
			fmt.Printf("Media %s staged for upload\n", l.Media.Filename)
		}
		return nil
	},
}

var logListCmd = &cobra.Command{
	Use:   "list GOAL_ID",
	Short: "List a goal's observations, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListLogs")
		if err != nil {
			return err
		}
		defer closeApp(a)

		logs, err := a.Tracker().LogsForGoal(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			fmt.Println("No observations.")
			return nil
		}
		for _, l := range logs {
			fmt.Printf("%s  %s  %3.0f%%  %-11s  %s%s\n",
				l.ID,
				l.Time().Format("2006-01-02 15:04"),
				l.Value,
				l.PromptLevel,
				mediaMarker(l.Media),
				strings.TrimSpace(l.Notes),
			)
		}
		return nil
	},
}

var logRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete an observation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "DeleteLog")
		if err != nil {
			return err
		}
		defer closeApp(a)

		return a.Tracker().DeleteLog(cmd.Context(), args[0])
	},
}

var logAttachCmd = &cobra.Command{
	Use:   "attach ID FILE",
	Short: "Attach or replace the media of an observation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "AttachMedia")
		if err != nil {
			return err
		}
		defer closeApp(a)

		_, err = a.AttachMedia(cmd.Context(), args[0], args[1])
		return err
	},
}

func mediaMarker(m *gt.Media) string {
	if m == nil {
		return ""
	}
	return fmt.Sprintf("[%s %s] ", m.Kind, m.State)
}

func init() {
	studentCmd.AddCommand(studentAddCmd)
	studentCmd.AddCommand(studentListCmd)
	studentCmd.AddCommand(studentRenameCmd)
	studentCmd.AddCommand(studentRmCmd)
	studentCmd.AddCommand(studentOrderCmd)
	studentAddCmd.Flags().String("photo", "", "Photo reference")

	goalCmd.AddCommand(goalAddCmd)
	goalCmd.AddCommand(goalListCmd)
	goalCmd.AddCommand(goalStatusCmd)
	goalCmd.AddCommand(goalRmCmd)
	goalCmd.AddCommand(goalReorderCmd)
	goalAddCmd.Flags().String("description", "", "Goal description")
	goalAddCmd.Flags().String("icon", "", "Icon name")

	logCmd.AddCommand(logAddCmd)
	logCmd.AddCommand(logListCmd)
	logCmd.AddCommand(logRmCmd)
	logCmd.AddCommand(logAttachCmd)
	logAddCmd.Flags().StringP("prompt", "p", string(gt.PromptIndependent), "Prompt level: independent, verbal, gesture, modeling, physical")
	logAddCmd.Flags().StringP("notes", "m", "", "Notes")
	logAddCmd.Flags().String("at", "", "When the observation happened (default now)")
	logAddCmd.Flags().String("media", "", "Photo or video file to attach")
}
