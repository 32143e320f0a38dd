package tests

import (
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/propdesk/apps/api/echo"
	"github.com/trezcool/propdesk/core/class"
	"github.com/trezcool/propdesk/core/policy"
	"github.com/trezcool/propdesk/core/prop"
	"github.com/trezcool/propdesk/core/user"
	"github.com/trezcool/propdesk/testutil"
)

func itoa(i int64) string {
	return strconv.FormatInt(i, 10)
}

func (e *env) createClass(t *testing.T, token, name string) class.CreatedClass {
	t.Helper()
	rec := e.do(http.MethodPost, "/v1/classes", token, marchallObj(t, class.NewClass{Name: name}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c class.CreatedClass
	unmarshal(t, rec, &c)
	return c
}

func (e *env) assign(t *testing.T, token string, classID int64, ids ...string) {
	t.Helper()
	rec := e.do(http.MethodPost, "/v1/classes/"+itoa(classID)+"/assign", token, marchallObj(t, class.AssignRequest{InstructorIDs: ids}))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
}

func (e *env) content(t *testing.T, token string, classID int64, instructorID string) class.Content {
	t.Helper()
	rec := e.do(http.MethodGet, "/v1/classes/"+itoa(classID)+"/instructors/"+instructorID, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var c class.Content
	unmarshal(t, rec, &c)
	return c
}

func Test_classApi_policy(t *testing.T) {
	e := setup(t)
	admin := testutil.CreateUser(t, e.usrRepo, "Admin", "admin", "", policy.RoleAdmin)
	ana := testutil.CreateUser(t, e.usrRepo, "Ana", "ana", "", policy.RoleInstructor)
	ben := testutil.CreateUser(t, e.usrRepo, "Ben", "ben", "", policy.RoleInstructor)
	paul := testutil.CreateUser(t, e.usrRepo, "Paul", "paul", "", policy.RolePA)
	adminToken, anaToken, paulToken := e.getToken(t, admin), e.getToken(t, ana), e.getToken(t, paul)

	c := e.createClass(t, adminToken, "Flow")
	classPath := "/v1/classes/" + itoa(c.ID)
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})
	assignBen := marchallObj(t, class.AssignRequest{InstructorIDs: []string{ben.ID}})

	runHTTPTests(t, e, []httpTest{
		{name: "auth required", path: "/v1/classes", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "PA cannot create", method: http.MethodPost, path: "/v1/classes", token: paulToken,
			body: marchallObj(t, class.NewClass{Name: "Yin"}), wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "blank name", method: http.MethodPost, path: "/v1/classes", token: adminToken,
			body: []byte(`{"name":"  "}`), wantCode: http.StatusBadRequest,
		},
		{name: "PA lists", path: "/v1/classes", token: paulToken, wantCode: http.StatusOK, wantData: marchallList(t, c.Class)},
		{name: "unknown class", path: "/v1/classes/999", token: paulToken, wantCode: http.StatusNotFound},
		{name: "malformed id", path: "/v1/classes/abc", token: paulToken, wantCode: http.StatusNotFound},
		{
			name: "instructor cannot assign another", method: http.MethodPost, path: classPath + "/assign", token: anaToken,
			body: assignBen, wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "empty assignment", method: http.MethodPost, path: classPath + "/assign", token: adminToken,
			body: []byte(`{"instructor_ids":[" "]}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"instructor_ids":"instructor_ids must contain at least 1 item"}`),
		},
		{
			name: "PA is not an instructor", method: http.MethodPost, path: classPath + "/assign", token: adminToken,
			body: marchallObj(t, class.AssignRequest{InstructorIDs: []string{paul.ID}}), wantCode: http.StatusBadRequest,
		},
		{name: "admin assigns", method: http.MethodPost, path: classPath + "/assign", token: adminToken, body: assignBen, wantCode: http.StatusNoContent},
		{
			name: "instructor cannot unassign another", method: http.MethodPost, path: classPath + "/unassign", token: anaToken,
			body: assignBen, wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{name: "leave unassigned class", method: http.MethodPost, path: classPath + "/leave", token: anaToken, wantCode: http.StatusBadRequest},
		{name: "instructor cannot delete", method: http.MethodDelete, path: classPath, token: anaToken, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "tracking is for admins", path: "/v1/reports/tracking", token: anaToken, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "lookup with no filter", path: "/v1/reports/assignments", token: paulToken, wantCode: http.StatusOK, wantData: marchallList(t)},
		{
			name: "lookup by class", path: "/v1/reports/assignments?class_id=" + itoa(c.ID), token: paulToken, wantCode: http.StatusOK,
			wantData: marchallList(t, class.AssignmentRow{ClassID: c.ID, ClassName: "Flow", InstructorID: ben.ID, InstructorName: "Ben"}),
		},
		{name: "admin deletes", method: http.MethodDelete, path: classPath, token: adminToken, wantCode: http.StatusNoContent},
		{name: "deleted", path: classPath, token: adminToken, wantCode: http.StatusNotFound},
	})
}

func Test_classApi_setInstructors(t *testing.T) {
	e := setup(t)
	admin := testutil.CreateUser(t, e.usrRepo, "Admin", "admin", "", policy.RoleAdmin)
	ana := testutil.CreateUser(t, e.usrRepo, "Ana", "ana", "", policy.RoleInstructor)
	ben := testutil.CreateUser(t, e.usrRepo, "Ben", "ben", "", policy.RoleInstructor)
	adminToken := e.getToken(t, admin)

	c := e.createClass(t, adminToken, "Flow")
	e.assign(t, adminToken, c.ID, ana.ID)

	rec := e.do(http.MethodPut, "/v1/classes/"+itoa(c.ID)+"/instructors", adminToken,
		marchallObj(t, class.AssignRequest{InstructorIDs: []string{ben.ID}}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var changes AssignmentChanges
	unmarshal(t, rec, &changes)
	assert.Equal(t, []string{ben.ID}, changes.Added)
	assert.Equal(t, []string{ana.ID}, changes.Removed)

	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: marchallList(t, class.Instructor{ID: ben.ID, DisplayName: "Ben"}),
	}, e.do(http.MethodGet, "/v1/classes/"+itoa(c.ID)+"/instructors", adminToken))
}

func Test_contentApi(t *testing.T) {
	e := setup(t)
	admin := testutil.CreateUser(t, e.usrRepo, "Admin", "admin", "", policy.RoleAdmin)
	ana := testutil.CreateUser(t, e.usrRepo, "Ana", "ana", "", policy.RoleInstructor)
	ben := testutil.CreateUser(t, e.usrRepo, "Ben", "ben", "", policy.RoleInstructor)
	adminToken, anaToken, benToken := e.getToken(t, admin), e.getToken(t, ana), e.getToken(t, ben)

	c := e.createClass(t, adminToken, "Flow")
	e.assign(t, adminToken, c.ID, ana.ID)
	anaPath := "/v1/classes/" + itoa(c.ID) + "/instructors/" + ana.ID
	benPath := "/v1/classes/" + itoa(c.ID) + "/instructors/" + ben.ID

	runHTTPTests(t, e, []httpTest{
		{name: "unassigned instructor", method: http.MethodPut, path: benPath + "/note", token: benToken, body: []byte(`{"note":"x"}`), wantCode: http.StatusForbidden},
		{name: "someone else's content", method: http.MethodPut, path: anaPath + "/note", token: benToken, body: []byte(`{"note":"x"}`), wantCode: http.StatusForbidden},
		{name: "admin on unassigned pair", method: http.MethodPut, path: benPath + "/note", token: adminToken, body: []byte(`{"note":"x"}`), wantCode: http.StatusBadRequest},
		{name: "unknown prop", method: http.MethodPost, path: anaPath + "/props", token: anaToken, body: []byte(`{"prop_id":999}`), wantCode: http.StatusBadRequest},
		{name: "own note", method: http.MethodPut, path: anaPath + "/note", token: anaToken, body: []byte(`{"note":"bring a strap"}`), wantCode: http.StatusOK},
	})

	t.Run("images", func(t *testing.T) {
		req, rec := newMultipartRequest(t, anaPath+"/images", anaToken, map[string][]byte{"a.png": testutil.PNG}, nil)
		e.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var images []class.Image
		unmarshal(t, rec, &images)
		require.Len(t, images, 1)
		assert.True(t, strings.HasPrefix(images[0].URL, "https://cdn.test/class_"+itoa(c.ID)+"/instr_"+ana.ID+"/"))

		req, rec = newMultipartRequest(t, anaPath+"/images", anaToken, map[string][]byte{"a.txt": []byte("hello")}, nil)
		e.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		e.objects.FailAll = true
		req, rec = newMultipartRequest(t, anaPath+"/images", anaToken, map[string][]byte{"b.png": testutil.PNG}, nil)
		e.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		e.objects.FailAll = false

		rec = e.do(http.MethodDelete, anaPath+"/images/"+itoa(images[0].ID), anaToken)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, 1, e.objects.Len())
	})

	t.Run("save all", func(t *testing.T) {
		note := "all at once"
		req, rec := newMultipartRequest(t, anaPath+"/save", anaToken, map[string][]byte{"a.png": testutil.PNG, "b.png": testutil.PNG}, &note)
		e.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var content class.Content
		unmarshal(t, rec, &content)
		assert.Len(t, content.Images, 2)
		assert.Equal(t, note, content.Note)
	})
}

func Test_propApi(t *testing.T) {
	e := setup(t)
	admin := testutil.CreateUser(t, e.usrRepo, "Admin", "admin", "", policy.RoleAdmin)
	ana := testutil.CreateUser(t, e.usrRepo, "Ana", "ana", "", policy.RoleInstructor)
	adminToken, anaToken := e.getToken(t, admin), e.getToken(t, ana)

	rec := e.do(http.MethodPost, "/v1/props", anaToken, marchallObj(t, prop.NewProp{Name: " Mat "}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var mat prop.Prop
	unmarshal(t, rec, &mat)
	assert.Equal(t, "Mat", mat.Name)
	matPath := "/v1/props/" + itoa(mat.ID)

	c := e.createClass(t, anaToken, "Flow")
	e.assign(t, anaToken, c.ID, ana.ID)
	rec = e.do(http.MethodPost, "/v1/classes/"+itoa(c.ID)+"/instructors/"+ana.ID+"/props", anaToken,
		marchallObj(t, class.AddClassProp{PropID: mat.ID}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	renamed := mat
	renamed.Name = "Yoga Mat"
	runHTTPTests(t, e, []httpTest{
		{name: "blank name", method: http.MethodPost, path: "/v1/props", token: anaToken, body: []byte(`{"name":" "}`), wantCode: http.StatusBadRequest},
		{
			name: "rename", method: http.MethodPut, path: matPath, token: anaToken,
			body: marchallObj(t, prop.NewProp{Name: "Yoga Mat"}), wantCode: http.StatusOK, wantData: marchallObj(t, renamed),
		},
		{name: "list", path: "/v1/props", token: anaToken, wantCode: http.StatusOK, wantData: marchallList(t, renamed)},
		{name: "usage", path: matPath + "/usage", token: anaToken, wantCode: http.StatusOK, wantData: marchallObj(t, PropUsage{ClassProps: 1})},
		{name: "instructor cannot delete", method: http.MethodDelete, path: matPath, token: anaToken, wantCode: http.StatusForbidden},
		{name: "admin deletes", method: http.MethodDelete, path: matPath, token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, PropUsage{ClassProps: 1})},
		{name: "gone", path: matPath + "/usage", token: anaToken, wantCode: http.StatusNotFound},
	})
	assert.Empty(t, e.content(t, anaToken, c.ID, ana.ID).Props)
}

func Test_reportApi_tracking(t *testing.T) {
	e := setup(t)
	admin := testutil.CreateUser(t, e.usrRepo, "Admin", "admin", "", policy.RoleAdmin)
	ana := testutil.CreateUser(t, e.usrRepo, "Ana", "ana", "", policy.RoleInstructor)
	ben := testutil.CreateUser(t, e.usrRepo, "Ben", "ben", "", policy.RoleInstructor)
	adminToken := e.getToken(t, admin)

	flow := e.createClass(t, adminToken, "Flow")
	yin := e.createClass(t, adminToken, "Yin")
	e.assign(t, adminToken, flow.ID, ana.ID, ben.ID)
	e.assign(t, adminToken, yin.ID, ana.ID)
	rec := e.do(http.MethodPut, "/v1/classes/"+itoa(flow.ID)+"/instructors/"+ana.ID+"/note", adminToken, []byte(`{"note":"props by the wall"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	anaRow := class.TrackingRow{InstructorID: ana.ID, Name: "Ana", Total: 2, Updated: 1, IdleClasses: []string{"Yin"}}
	benRow := class.TrackingRow{InstructorID: ben.ID, Name: "Ben", Total: 1, Updated: 0, IdleClasses: []string{"Flow"}}

	runHTTPTests(t, e, []httpTest{
		{name: "by name", path: "/v1/reports/tracking", token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, anaRow, benRow)},
		{name: "by name desc", path: "/v1/reports/tracking?desc=true", token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, benRow, anaRow)},
		{name: "by updated", path: "/v1/reports/tracking?sort=updated", token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, benRow, anaRow)},
		{name: "search", path: "/v1/reports/tracking?q=BE", token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, benRow)},
	})
}

// An instructor creates Wall Yoga, self-assigns, adds the Mat prop and an image.
// Once an admin unassigns them, none of their content for the class is left.
func Test_wallYogaScenario(t *testing.T) {
	e := setup(t)
	ana := testutil.CreateUser(t, e.usrRepo, "Ana", "ana", "", policy.RoleInstructor)
	anaToken := e.getToken(t, ana)

	rec := e.do(http.MethodPost, "/v1/auth/login", "", marchallObj(t, LoginRequest{Username: user.SuperAdminUsername, Password: user.SuperAdminPassword}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login LoginResponse
	unmarshal(t, rec, &login)
	adminToken := login.Token

	wall := e.createClass(t, anaToken, "Wall Yoga")
	require.True(t, wall.OfferSelfAssign)
	e.assign(t, anaToken, wall.ID, ana.ID)

	rec = e.do(http.MethodPost, "/v1/props", anaToken, marchallObj(t, prop.NewProp{Name: "Mat"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var mat prop.Prop
	unmarshal(t, rec, &mat)

	pairPath := "/v1/classes/" + itoa(wall.ID) + "/instructors/" + ana.ID
	rec = e.do(http.MethodPost, pairPath+"/props", anaToken, marchallObj(t, class.AddClassProp{PropID: mat.ID}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	req, rec := newMultipartRequest(t, pairPath+"/images", anaToken, map[string][]byte{"wall.png": testutil.PNG}, nil)
	e.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: marchallList(t, class.Instructor{ID: ana.ID, DisplayName: "Ana"}),
	}, e.do(http.MethodGet, "/v1/classes/"+itoa(wall.ID)+"/instructors", adminToken))

	myClasses := e.do(http.MethodGet, "/v1/me/classes", anaToken)
	require.Equal(t, http.StatusOK, myClasses.Code)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t, wall.Class)}, myClasses)

	rec = e.do(http.MethodPost, "/v1/classes/"+itoa(wall.ID)+"/unassign", adminToken,
		marchallObj(t, class.AssignRequest{InstructorIDs: []string{ana.ID}}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	content := e.content(t, adminToken, wall.ID, ana.ID)
	assert.True(t, content.Empty())
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t)}, e.do(http.MethodGet, "/v1/me/classes", anaToken))
}
