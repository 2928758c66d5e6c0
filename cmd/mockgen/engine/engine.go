package engine

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"workgraph/internal/azdo"
	"workgraph/internal/github"
	"workgraph/internal/history"
	"workgraph/internal/identity"
	"workgraph/internal/snapshot"
)

type GeneratorConfig struct {
	Scenario     string // "mild" or "chaos"
	Distribution string // "uniform" or "weibull"
	Count        int
	Owner        string
	Repo         string
	AzureOrg     string
	Project      string
	Seed         int64
	Now          time.Time
}

// Data is one generated crawl.
type Data struct {
	Issues    []github.IssueDTO
	WorkItems []azdo.WorkItemDTO
	Links     []identity.Link
	Transfers map[string]string
}

var people = []identity.Link{
	{GitHubLogin: "alice", MicrosoftAlias: "alicew", Name: "Alice Wong"},
	{GitHubLogin: "bob", MicrosoftAlias: "bobm", Name: "Bob Martin"},
	{GitHubLogin: "carol", MicrosoftAlias: "carolk", Name: "Carol King"},
	{GitHubLogin: "dave", Name: "Dave Ortiz"},
}

var areas = []string{"GC", "JIT", "Interop", "Networking"}

const epicEvery = 10

func (cfg *GeneratorConfig) defaults() {
	if cfg.Now.IsZero() {
		cfg.Now = time.Now().UTC()
	}
	if cfg.Count <= 0 {
		cfg.Count = 50
	}
	if cfg.Owner == "" {
		cfg.Owner = "dotnet"
	}
	if cfg.Repo == "" {
		cfg.Repo = "runtime"
	}
	if cfg.AzureOrg == "" {
		cfg.AzureOrg = "devdiv"
	}
	if cfg.Project == "" {
		cfg.Project = "DevDiv"
	}
}

// Generate builds a synthetic crawl: one Azure scenario per area linking to
// GitHub epics, and epics listing their user stories in a task list. The
// chaos scenario adds reopen noise, dangling references, a cycle and a
// transferred issue.
func Generate(cfg GeneratorConfig) Data {
	cfg.defaults()
	rng := rand.New(rand.NewSource(cfg.Seed))
	origin := cfg.Owner + "/" + cfg.Repo

	data := Data{Links: people, Transfers: make(map[string]string)}

	// Last arrival is today; one arrival per day before that.
	tArrival := cfg.Now.AddDate(0, 0, -cfg.Count)
	epics := make(map[string][]int) // area -> epic numbers
	epic := -1

	for i := 0; i < cfg.Count; i++ {
		number := i + 1
		arrival := tArrival.Add(time.Duration(i*24) * time.Hour)
		area := areas[(i/epicEvery)%len(areas)]
		author := people[rng.Intn(len(people))].GitHubLogin

		dto := github.IssueDTO{
			Owner:     cfg.Owner,
			Repo:      cfg.Repo,
			Number:    number,
			URL:       fmt.Sprintf("https://github.com/%s/issues/%d", origin, number),
			State:     "open",
			CreatedAt: stamp(arrival),
			User:      &github.UserDTO{Login: author},
			Labels:    []github.LabelDTO{{Name: github.AreaLabelPrefix + area}},
		}

		isEpic := i%epicEvery == 0
		if isEpic {
			dto.Title = fmt.Sprintf("%s improvements %d", area, i/epicEvery+1)
			dto.Labels = append(dto.Labels, github.LabelDTO{Name: "Epic"})
			epics[area] = append(epics[area], number)
		} else {
			dto.Title = fmt.Sprintf("%s work item %d", area, number)
			dto.Labels = append(dto.Labels, github.LabelDTO{Name: "User Story"})
		}
		if rng.Intn(3) == 0 {
			dto.Labels = append(dto.Labels, github.LabelDTO{Name: fmt.Sprintf("Priority: %d", rng.Intn(3))})
		}

		k, lambda := 2.5, 60.0
		if cfg.Scenario == "chaos" {
			k = 0.8
		}
		var totalDays float64
		if cfg.Distribution == "weibull" {
			totalDays = weibullSample(rng, k, lambda)
		} else {
			totalDays = 30 + rng.Float64()*90
		}
		timeline, status, closed := lifecycle(rng, cfg, arrival, totalDays, author)

		dto.Labels = append(dto.Labels, github.LabelDTO{Name: "Status: " + status})
		if closed {
			dto.State = "closed"
		}
		ms := milestoneFor(arrival)
		dto.Milestone = &github.MilestoneDTO{Title: ms}
		timeline = append(timeline, github.EventDTO{
			Event:     github.EventMilestoned,
			Actor:     &github.UserDTO{Login: author},
			CreatedAt: stamp(arrival.Add(time.Hour)),
			Milestone: &github.MilestoneDTO{Title: ms},
		})
		assignee := people[rng.Intn(len(people))].GitHubLogin
		dto.Assignees = []github.UserDTO{{Login: assignee}}
		timeline = append(timeline, github.EventDTO{
			Event:     github.EventAssigned,
			Actor:     &github.UserDTO{Login: author},
			CreatedAt: stamp(arrival.Add(2 * time.Hour)),
			Assignee:  &github.UserDTO{Login: assignee},
		})
		dto.Timeline = timeline

		data.Issues = append(data.Issues, dto)
		if isEpic {
			epic = len(data.Issues) - 1
		} else if epic >= 0 {
			data.Issues[epic].Body += fmt.Sprintf("- [ ] #%d\n", number)
		}
	}

	if cfg.Scenario == "chaos" && len(data.Issues) > 1 {
		first := &data.Issues[0]
		first.Body += fmt.Sprintf("- [ ] %s#%d\n", origin, cfg.Count*10)
		// The first story lists its own epic, closing a cycle.
		data.Issues[1].Body += fmt.Sprintf("- [ ] #%d\n", first.Number)

		moved := data.Issues[len(data.Issues)-1]
		moved.Repo = cfg.Repo + "-archive"
		moved.URL = fmt.Sprintf("https://github.com/%s/%s/issues/%d", cfg.Owner, moved.Repo, moved.Number)
		data.Issues = append(data.Issues, moved)
		data.Transfers[fmt.Sprintf("%s/%s#%d", cfg.Owner, moved.Repo, moved.Number)] = fmt.Sprintf("%s#%d", origin, moved.Number)
	}

	for i, area := range areas {
		id := 1000 + i
		created := tArrival.Add(-24 * time.Hour)
		owner := people[i%len(people)]
		item := azdo.WorkItemDTO{
			Org:     cfg.AzureOrg,
			Project: cfg.Project,
			ID:      id,
			Fields: map[string]any{
				history.AzureWorkItemType: "Scenario",
				history.AzureTitle:        area + " roadmap",
				history.AzureState:        "Active",
				history.AzureAssignedTo:   identityField(owner),
				history.AzureMilestone:    milestoneFor(cfg.Now),
				azdo.FieldAreaPath:        cfg.Project + `\` + area,
				azdo.FieldCreatedDate:     stamp(created),
				azdo.FieldCreatedBy:       identityField(owner),
			},
			Updates: []azdo.UpdateDTO{
				{Rev: 1, RevisedBy: identityOf(owner), RevisedDate: stamp(created), Fields: map[string]azdo.FieldChangeDTO{
					history.AzureState: {NewValue: "New"},
				}},
				{Rev: 2, RevisedBy: identityOf(owner), RevisedDate: stamp(cfg.Now), Fields: map[string]azdo.FieldChangeDTO{
					history.AzureState:    {OldValue: "New", NewValue: "Active"},
					azdo.FieldChangedDate: {OldValue: stamp(created), NewValue: stamp(created.Add(72 * time.Hour))},
				}},
			},
		}
		for _, n := range epics[area] {
			item.Relations = append(item.Relations, azdo.RelationDTO{
				Rel: azdo.RelHyperlink,
				URL: fmt.Sprintf("https://github.com/%s/issues/%d", origin, n),
			})
		}
		data.WorkItems = append(data.WorkItems, item)
	}

	return data
}

// lifecycle walks an issue through the status labels. It returns the
// timeline, the current status label and whether the issue is closed.
func lifecycle(rng *rand.Rand, cfg GeneratorConfig, arrival time.Time, totalDays float64, actor string) ([]github.EventDTO, string, bool) {
	at := func(fraction float64) time.Time {
		return arrival.Add(time.Duration(totalDays*fraction*24) * time.Hour)
	}
	label := func(event, name string, when time.Time) github.EventDTO {
		return github.EventDTO{Event: event, Actor: &github.UserDTO{Login: actor}, CreatedAt: stamp(when), Label: &github.LabelDTO{Name: name}}
	}
	state := func(event string, when time.Time) github.EventDTO {
		return github.EventDTO{Event: event, Actor: &github.UserDTO{Login: actor}, CreatedAt: stamp(when)}
	}

	events := []github.EventDTO{label(github.EventLabeled, "Status: Proposed", arrival)}
	status := "Proposed"
	swap := func(next string, when time.Time) {
		// Same actor and timestamp: replayed as one transition.
		events = append(events,
			label(github.EventUnlabeled, "Status: "+status, when),
			label(github.EventLabeled, "Status: "+next, when))
		status = next
	}

	if t := at(0.15); t.Before(cfg.Now) {
		swap("Committed", t)
	}
	if t := at(0.40); t.Before(cfg.Now) {
		swap("In Progress", t)
	}
	done := at(1)
	if !done.Before(cfg.Now) {
		return events, status, false
	}
	if cfg.Scenario == "chaos" && rng.Intn(10) == 0 {
		swap("Cut", done)
		return events, status, false
	}
	events = append(events, state(github.EventClosed, done))
	if cfg.Scenario == "chaos" && rng.Intn(5) == 0 {
		reopened := done.Add(24 * time.Hour)
		if reopened.Before(cfg.Now) {
			events = append(events,
				state(github.EventReopened, reopened),
				state(github.EventClosed, reopened.Add(time.Hour)))
		}
	}
	return events, status, true
}

// milestoneFor picks the .NET release shipping in November of t's year, or
// the next one once November has passed.
func milestoneFor(t time.Time) string {
	major := t.Year() - 2015
	if t.Month() >= time.November {
		major++
	}
	return fmt.Sprintf("%d.0", major)
}

func identityOf(l identity.Link) azdo.IdentityDTO {
	unique := ""
	if l.MicrosoftAlias != "" {
		unique = l.MicrosoftAlias + "@contoso.com"
	}
	return azdo.IdentityDTO{DisplayName: l.Name, UniqueName: unique}
}

func identityField(l identity.Link) map[string]any {
	id := identityOf(l)
	return map[string]any{"displayName": id.DisplayName, "uniqueName": id.UniqueName}
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func weibullSample(rng *rand.Rand, k, lambda float64) float64 {
	u := rng.Float64()
	if u == 0 {
		u = 0.0001
	}
	// X = lambda * (-ln(1-u))^(1/k)
	return lambda * math.Pow(-math.Log(1.0-u), 1.0/k)
}

// Save writes the crawl as a snapshot directory.
func Save(outDir string, data Data) error {
	store := snapshot.NewStore()
	store.AddIssues(data.Issues...)
	store.AddWorkItems(data.WorkItems...)
	store.AddLinks(data.Links...)
	for from, to := range data.Transfers {
		store.AddTransfer(from, to)
	}
	return store.Save(outDir)
}

// Summary describes data in one line.
func Summary(data Data) string {
	closed := 0
	for _, is := range data.Issues {
		if strings.EqualFold(is.State, "closed") {
			closed++
		}
	}
	return fmt.Sprintf("%d issues (%d closed), %d work items, %d links, %d transfers",
		len(data.Issues), closed, len(data.WorkItems), len(data.Links), len(data.Transfers))
}
