package notify

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"logiflow/internal/model"
)

var driverTmpl = template.Must(template.New("driver").Parse(`<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Nouvel Itinéraire Assigné</h2>
  <p>Bonjour {{.Name}},</p>
  <p>Un nouvel itinéraire de livraison vous a été automatiquement assigné.</p>
  <div style="background: #f0f0f0; padding: 15px; border-radius: 5px; margin: 20px 0;">
    <p><strong>Date:</strong> {{.Date}}</p>
    <p><strong>Nombre de colis:</strong> {{.StopCount}}</p>
    <p><strong>Distance estimée:</strong> {{.DistanceKm}} km</p>
    <p><strong>Temps estimé:</strong> {{.TimeMin}} minutes</p>
  </div>
  <h3>Vos arrêts:</h3>
  <ul>
  {{range .Stops}}<li>Commande {{.OrderID}} - Arrêt #{{.VisitOrder}}</li>
  {{end}}</ul>
  <p style="margin-top: 30px;"><strong>Consultez votre application</strong> pour voir le détail de votre itinéraire.</p>
  <p>Merci pour votre engagement!</p>
  <p style="color: #666; font-size: 12px;">Système de Gestion Logistique</p>
</body>
</html>`))

var managerTmpl = template.Must(template.New("manager").Parse(`<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Résumé Optimisation des Routes</h2>
  <p>Bonjour,</p>
  <p>L'optimisation automatique des routes pour le <strong>{{.Date}}</strong> est terminée.</p>
  <div style="background: #d4edda; padding: 15px; border-radius: 5px; border-left: 4px solid #28a745; margin: 20px 0;">
    <p><strong>Dépôt:</strong> {{.DepotName}}</p>
    <p><strong>Commandes planifiées:</strong> {{.Scheduled}}</p>
    <p><strong>Commandes reportées:</strong> {{.Unscheduled}}</p>
    <p><strong>Livreurs engagés:</strong> {{.VehiclesUsed}}</p>
  </div>
  <h3>Détail des itinéraires:</h3>
  <table style="border-collapse: collapse; width: 100%;">
    <tr style="background: #e9ecef;">
      <th style="border: 1px solid #ddd; padding: 8px;">Livreur</th>
      <th style="border: 1px solid #ddd; padding: 8px;">Colis</th>
      <th style="border: 1px solid #ddd; padding: 8px;">Distance</th>
      <th style="border: 1px solid #ddd; padding: 8px;">Temps</th>
    </tr>
  {{range .Rows}}<tr>
      <td style="border: 1px solid #ddd; padding: 8px;">{{.Driver}}</td>
      <td style="border: 1px solid #ddd; padding: 8px;">{{.StopCount}}</td>
      <td style="border: 1px solid #ddd; padding: 8px;">{{.DistanceKm}} km</td>
      <td style="border: 1px solid #ddd; padding: 8px;">{{.TimeMin}} min</td>
    </tr>
  {{end}}</table>
  <div style="margin-top: 30px; padding: 15px; background: #e7f3ff; border-left: 4px solid #0066cc; border-radius: 5px;">
    <p><strong>Action:</strong> Accédez à votre dashboard pour:</p>
    <ul>
      <li>Consulter les itinéraires détaillés</li>
      <li>Modifier les assignations si nécessaire</li>
      <li>Voir les commandes reportées</li>
    </ul>
  </div>
  <p style="margin-top: 30px; color: #666; font-size: 12px;">Système de Gestion Logistique</p>
</body>
</html>`))

func renderDriverMail(driver model.Driver, route model.Route, day time.Time) (string, error) {
	name := driver.Name
	if name == "" {
		name = driver.Email
	}
	data := struct {
		Name       string
		Date       string
		StopCount  int
		DistanceKm string
		TimeMin    int
		Stops      []model.Stop
	}{
		Name:       name,
		Date:       day.Format("02/01/2006"),
		StopCount:  route.StopCount,
		DistanceKm: fmt.Sprintf("%.1f", float64(route.DistanceM)/1000),
		TimeMin:    int(route.TimeS / 60),
		Stops:      route.Stops,
	}
	var sb strings.Builder
	if err := driverTmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

type managerRow struct {
	Driver     string
	StopCount  int
	DistanceKm string
	TimeMin    int
}

func renderManagerMail(depot model.Depot, drivers map[int64]model.Driver, plan model.PlanResult, day time.Time) (string, error) {
	rows := make([]managerRow, 0, len(plan.Routes))
	for _, r := range plan.Routes {
		name := "Inconnu"
		if d, ok := drivers[r.DriverID]; ok {
			if d.Name != "" {
				name = d.Name
			} else if d.Email != "" {
				name = d.Email
			}
		}
		rows = append(rows, managerRow{
			Driver:     name,
			StopCount:  r.StopCount,
			DistanceKm: fmt.Sprintf("%.1f", float64(r.DistanceM)/1000),
			TimeMin:    int(r.TimeS / 60),
		})
	}
	data := struct {
		Date         string
		DepotName    string
		Scheduled    int
		Unscheduled  int
		VehiclesUsed int
		Rows         []managerRow
	}{
		Date:         day.Format("02/01/2006"),
		DepotName:    depot.Name,
		Scheduled:    plan.Scheduled,
		Unscheduled:  plan.Unscheduled,
		VehiclesUsed: plan.VehiclesUsed,
		Rows:         rows,
	}
	var sb strings.Builder
	if err := managerTmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
